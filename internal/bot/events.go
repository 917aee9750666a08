// internal/bot/events.go
package bot

import (
	"reflect"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rovshanmuradov/solana-tg-bot/internal/market"
	"github.com/rovshanmuradov/solana-tg-bot/internal/trading"
)

// TradingEvent представляет событие в торговой системе
type TradingEvent interface {
	GetType() string
	GetTimestamp() time.Time
	GetUserID() string
}

const (
	EventPositionClosed     = "position_closed"
	EventLimitOrderFilled   = "limit_order_filled"
	EventNewTokenDiscovered = "new_token_discovered"
)

// CloseReason says what closed a position.
type CloseReason string

const (
	ReasonSell   CloseReason = "sell"
	ReasonManual CloseReason = "manual"
	ReasonLimit  CloseReason = "limit"
)

// PositionClosedEvent событие закрытия позиции; из него строится карточка профита
type PositionClosedEvent struct {
	ChatID    int64            `json:"chat_id"`
	Position  trading.Position `json:"position"`
	MarketCap float64          `json:"market_cap"`
	Reason    CloseReason      `json:"reason"`
	Timestamp time.Time        `json:"timestamp"`
}

func (e PositionClosedEvent) GetType() string         { return EventPositionClosed }
func (e PositionClosedEvent) GetTimestamp() time.Time { return e.Timestamp }
func (e PositionClosedEvent) GetUserID() string       { return strconv.FormatInt(e.ChatID, 10) }

// LimitOrderFilledEvent событие исполнения лимитного ордера
type LimitOrderFilledEvent struct {
	ChatID    int64              `json:"chat_id"`
	Order     trading.LimitOrder `json:"order"`
	Price     float64            `json:"price"`
	TxID      string             `json:"tx_id"`
	Message   string             `json:"message"`
	Timestamp time.Time          `json:"timestamp"`
}

func (e LimitOrderFilledEvent) GetType() string         { return EventLimitOrderFilled }
func (e LimitOrderFilledEvent) GetTimestamp() time.Time { return e.Timestamp }
func (e LimitOrderFilledEvent) GetUserID() string       { return strconv.FormatInt(e.ChatID, 10) }

// NewTokenEvent is published once per chat for every newly listed pair.
type NewTokenEvent struct {
	ChatID    int64           `json:"chat_id"`
	Pair      market.PairInfo `json:"pair"`
	Timestamp time.Time       `json:"timestamp"`
}

func (e NewTokenEvent) GetType() string         { return EventNewTokenDiscovered }
func (e NewTokenEvent) GetTimestamp() time.Time { return e.Timestamp }
func (e NewTokenEvent) GetUserID() string       { return strconv.FormatInt(e.ChatID, 10) }

// EventHandler интерфейс для обработчиков событий
type EventHandler interface {
	Handle(event TradingEvent) error
	CanHandle(event TradingEvent) bool
}

// EventSubscriber интерфейс для подписчиков на события
type EventSubscriber interface {
	OnEvent(event TradingEvent)
	GetSubscribedEventTypes() []string
}

// EventBus шина событий. Handlers and subscribers run in their own goroutines.
type EventBus struct {
	handlers    map[reflect.Type][]EventHandler
	subscribers map[string][]EventSubscriber // event_type -> subscribers
	logger      *zap.Logger
	mu          sync.RWMutex
	inflight    sync.WaitGroup
}

// NewEventBus создает новую шину событий
func NewEventBus(logger *zap.Logger) *EventBus {
	return &EventBus{
		handlers:    make(map[reflect.Type][]EventHandler),
		subscribers: make(map[string][]EventSubscriber),
		logger:      logger.Named("event_bus"),
	}
}

// RegisterHandler регистрирует обработчик для типа события
func (bus *EventBus) RegisterHandler(eventType TradingEvent, handler EventHandler) {
	bus.mu.Lock()
	defer bus.mu.Unlock()

	eventReflectType := reflect.TypeOf(eventType)
	bus.handlers[eventReflectType] = append(bus.handlers[eventReflectType], handler)

	bus.logger.Debug("Event handler registered",
		zap.String("event_type", eventType.GetType()),
		zap.String("handler", reflect.TypeOf(handler).String()))
}

// Subscribe подписывает подписчика на события
func (bus *EventBus) Subscribe(subscriber EventSubscriber) {
	bus.mu.Lock()
	defer bus.mu.Unlock()

	for _, eventType := range subscriber.GetSubscribedEventTypes() {
		bus.subscribers[eventType] = append(bus.subscribers[eventType], subscriber)
		bus.logger.Debug("Subscriber registered",
			zap.String("event_type", eventType),
			zap.String("subscriber", reflect.TypeOf(subscriber).String()))
	}
}

// Publish публикует событие
func (bus *EventBus) Publish(event TradingEvent) {
	bus.mu.RLock()
	handlers := bus.handlers[reflect.TypeOf(event)]
	subscribers := bus.subscribers[event.GetType()]
	bus.mu.RUnlock()

	bus.logger.Info("Publishing event",
		zap.String("event_type", event.GetType()),
		zap.String("user_id", event.GetUserID()),
		zap.Int("handlers", len(handlers)),
		zap.Int("subscribers", len(subscribers)))

	for _, handler := range handlers {
		if !handler.CanHandle(event) {
			continue
		}
		bus.inflight.Add(1)
		go func(h EventHandler) {
			defer bus.inflight.Done()
			defer bus.recoverPanic(event, reflect.TypeOf(h).String())
			if err := h.Handle(event); err != nil {
				bus.logger.Error("Event handler failed",
					zap.String("event_type", event.GetType()),
					zap.String("handler", reflect.TypeOf(h).String()),
					zap.Error(err))
			}
		}(handler)
	}

	for _, subscriber := range subscribers {
		bus.inflight.Add(1)
		go func(s EventSubscriber) {
			defer bus.inflight.Done()
			defer bus.recoverPanic(event, reflect.TypeOf(s).String())
			s.OnEvent(event)
		}(subscriber)
	}
}

func (bus *EventBus) recoverPanic(event TradingEvent, who string) {
	if r := recover(); r != nil {
		bus.logger.Error("Event consumer panic",
			zap.String("event_type", event.GetType()),
			zap.String("consumer", who),
			zap.Any("panic", r))
	}
}

// Wait blocks until every dispatched handler and subscriber has returned.
func (bus *EventBus) Wait() {
	bus.inflight.Wait()
}

// GetSubscriberCount возвращает количество подписчиков для типа события
func (bus *EventBus) GetSubscriberCount(eventType string) int {
	bus.mu.RLock()
	defer bus.mu.RUnlock()
	return len(bus.subscribers[eventType])
}

// GetHandlerCount возвращает количество обработчиков для типа события
func (bus *EventBus) GetHandlerCount(eventType TradingEvent) int {
	bus.mu.RLock()
	defer bus.mu.RUnlock()
	return len(bus.handlers[reflect.TypeOf(eventType)])
}
