package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"thermowatch/internal/brokerlink"
	"thermowatch/internal/logging"
	"thermowatch/internal/model"
)

// Recorder je část ingest.Service, kterou bridge volá.
type Recorder interface {
	Record(ctx context.Context, value float64) (model.Reading, error)
}

// ReadingEvent je zpráva, kterou posíláme dál na OUTPUT_TOPIC.
type ReadingEvent struct {
	model.Reading
	Exceeded bool `json:"exceeded"`
}

// Bridge přebírá hodnoty z Broker Linku a ukládá je přes ingest.
// Observer callback běží na goroutině linku, proto jen vkládá do fronty;
// ukládání a publikace běží ve workeru (Run).
type Bridge struct {
	queue       chan float64
	recorder    Recorder
	publisher   logging.Publisher // nil = nepublikujeme
	outputTopic string
	saveTimeout time.Duration
	logger      *slog.Logger
}

func NewBridge(recorder Recorder, publisher logging.Publisher, outputTopic string, queueSize int, logger *slog.Logger) *Bridge {
	if queueSize < 1 {
		queueSize = 1
	}
	return &Bridge{
		queue:       make(chan float64, queueSize),
		recorder:    recorder,
		publisher:   publisher,
		outputTopic: outputTopic,
		saveTimeout: 5 * time.Second,
		logger:      logger,
	}
}

// Observer vrací pozorovatele pro brokerlink.Link. Změny stavu loguje
// už samotný link.
func (b *Bridge) Observer() brokerlink.Observer {
	return brokerlink.ObserverFuncs{
		Value: func(r model.LiveReading) { b.Enqueue(r.Value) },
		Err: func(err *brokerlink.Error) {
			b.logger.Warn("Chyba broker linku", "kind", err.Kind.String(), "error", err.Err)
		},
	}
}

// Enqueue nikdy neblokuje. Při plné frontě hodnotu zahodí.
func (b *Bridge) Enqueue(value float64) bool {
	select {
	case b.queue <- value:
		return true
	default:
		b.logger.Warn("Fronta měření je plná, hodnota zahozena", "value", value)
		return false
	}
}

// Run zpracovává frontu, dokud není ctx zrušen.
func (b *Bridge) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case value := <-b.queue:
			b.handle(ctx, value)
		}
	}
}

func (b *Bridge) handle(ctx context.Context, value float64) {
	// Uložení s timeoutem, aby DB operace nevisela věčně.
	saveCtx, cancel := context.WithTimeout(ctx, b.saveTimeout)
	defer cancel()

	reading, err := b.recorder.Record(saveCtx, value)
	if err != nil {
		// Server ukládání sám neopakuje, zprávu zahodíme.
		b.logger.Error("Chyba při ukládání měření", "value", value, "error", err)
		return
	}
	if reading.Exceeded() {
		b.logger.Warn("Teplota překročila limit", "value", reading.Value, "threshold", *reading.ThresholdValue)
	}

	if b.publisher == nil || b.outputTopic == "" {
		return
	}
	payload, err := json.Marshal(ReadingEvent{Reading: reading, Exceeded: reading.Exceeded()})
	if err != nil {
		b.logger.Error("Nelze serializovat měření", "error", err)
		return
	}
	// Fire-and-forget, stejně jako u logů.
	b.publisher.Publish(b.outputTopic, 0, false, payload)
	b.logger.Debug("Měření uloženo a odesláno", "id", reading.ID, "topic", b.outputTopic)
}
