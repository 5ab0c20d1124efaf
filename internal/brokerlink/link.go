package brokerlink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"thermowatch/internal/model"
)

// Handlers předává Dialer transportu. Volají se z goroutin knihovny.
type Handlers struct {
	OnMessage func(payload []byte)
	OnLost    func(err error)
}

// Session je jedno navázané a přihlášené (subscribed) spojení.
// Close musí uvolnit socket a je volán přesně jednou.
type Session interface {
	Close()
}

// Dialer naváže spojení s brokerem a přihlásí se k topicu.
// Musí respektovat ctx (timeout handshaku) a při chybě po sobě uklidit.
type Dialer interface {
	Dial(ctx context.Context, h Handlers) (Session, error)
}

var errConnectionClosed = errors.New("connection closed by broker")

type event struct {
	gen     uint64
	payload []byte
	lost    bool
	err     error
}

// Link drží jedno dlouhodobé spojení na jeden topic a řídí stavový automat
// Disconnected → Connecting → Connected → Reconnecting → ...
// Všechny přechody běží na jediné goroutině (run), takže jsou serializované.
type Link struct {
	dialer Dialer
	decode Decoder
	now    func() time.Time
	logger *slog.Logger

	handshakeTimeout time.Duration
	initialBackoff   time.Duration
	maxBackoff       time.Duration
	jitter           float64

	// mu chrání state, observers a životní cyklus (started/cancel).
	mu        sync.Mutex
	state     State
	observers []Observer
	started   bool
	cancel    context.CancelFunc

	events   chan event
	stopping chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// Option upravuje Link při vytvoření.
type Option func(*Link)

// WithHandshakeTimeout nastaví limit pro connect + subscribe. Po jeho
// vypršení přejde link do Failed.
func WithHandshakeTimeout(d time.Duration) Option {
	return func(l *Link) { l.handshakeTimeout = d }
}

// WithBackoff nastaví první a maximální prodlevu mezi pokusy.
func WithBackoff(initial, max time.Duration) Option {
	return func(l *Link) {
		l.initialBackoff = initial
		l.maxBackoff = max
	}
}

// WithJitter nastaví náhodný rozptyl prodlevy (0 = deterministická).
func WithJitter(factor float64) Option {
	return func(l *Link) { l.jitter = factor }
}

// WithDecoder nahradí DecodeTemperature, např. pro senzory v jiných jednotkách.
func WithDecoder(d Decoder) Option {
	return func(l *Link) { l.decode = d }
}

func WithClock(now func() time.Time) Option {
	return func(l *Link) { l.now = now }
}

func WithLogger(logger *slog.Logger) Option {
	return func(l *Link) { l.logger = logger }
}

// New vytvoří link ve stavu Disconnected. Nic se nepřipojuje, dokud se
// nezavolá Start.
func New(dialer Dialer, opts ...Option) *Link {
	l := &Link{
		dialer:           dialer,
		decode:           DecodeTemperature,
		now:              func() time.Time { return time.Now().UTC() },
		logger:           slog.Default(),
		handshakeTimeout: 10 * time.Second,
		initialBackoff:   time.Second,
		maxBackoff:       time.Minute,
		jitter:           0.2,
		state:            Disconnected,
		events:           make(chan event, 64),
		stopping:         make(chan struct{}),
		done:             make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// AddObserver zaregistruje observera. Registrovat je vhodné před Start;
// observer přidaný později dostane jen následující události.
func (l *Link) AddObserver(o Observer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	// Nový slice, aby notifikace běžící nad starou kopií nebyla ovlivněna.
	obs := make([]Observer, 0, len(l.observers)+1)
	obs = append(obs, l.observers...)
	l.observers = append(obs, o)
}

// State vrací aktuální stav.
func (l *Link) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Start spustí goroutinu spojení. Druhé volání ani volání po Stop nic nedělá.
func (l *Link) Start(ctx context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.started {
		return
	}
	select {
	case <-l.stopping:
		return
	default:
	}
	l.started = true

	runCtx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	go l.run(runCtx)
}

// Stop ukončí spojení z libovolného stavu (i během čekání na další pokus).
// Po návratu je socket uvolněn, stav je Disconnected a žádná další
// notifikace už nepřijde. Volání je idempotentní.
func (l *Link) Stop() {
	l.stopOnce.Do(func() {
		l.mu.Lock()
		close(l.stopping)
		started, cancel := l.started, l.cancel
		l.mu.Unlock()

		if !started {
			return
		}
		cancel()
		<-l.done
	})
}

// Done se zavře, když goroutina spojení skončí.
func (l *Link) Done() <-chan struct{} {
	return l.done
}

func (l *Link) run(ctx context.Context) {
	defer close(l.done)
	// Finální přechod proběhne až po uzavření session.
	defer l.setState(Disconnected)

	b := l.newBackOff()
	var gen uint64

	for {
		gen++
		l.setState(Connecting)

		sess, err := l.dial(ctx, gen)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			l.emitError(ConnectionError, err)
			l.setState(Failed)
			if !l.wait(ctx, b.NextBackOff()) {
				return
			}
			l.setState(Reconnecting)
			continue
		}

		b.Reset()
		l.setState(Connected)

		err = l.serve(ctx, sess, gen)
		sess.Close()
		if ctx.Err() != nil {
			return
		}

		l.emitError(ConnectionError, err)
		l.setState(Reconnecting)
		if !l.wait(ctx, b.NextBackOff()) {
			return
		}
	}
}

func (l *Link) dial(ctx context.Context, gen uint64) (Session, error) {
	dctx, cancel := context.WithTimeout(ctx, l.handshakeTimeout)
	defer cancel()

	sess, err := l.dialer.Dial(dctx, Handlers{
		OnMessage: func(payload []byte) {
			// Payload kopírujeme, knihovna ho může recyklovat.
			p := make([]byte, len(payload))
			copy(p, payload)
			l.post(event{gen: gen, payload: p})
		},
		OnLost: func(err error) {
			l.post(event{gen: gen, lost: true, err: err})
		},
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, fmt.Errorf("handshake timeout after %s: %w", l.handshakeTimeout, err)
		}
		return nil, err
	}
	return sess, nil
}

// post předá událost z goroutiny knihovny do run smyčky.
// Po ukončení linku se událost zahodí, aby callback nevisel.
func (l *Link) post(ev event) {
	select {
	case l.events <- ev:
	case <-l.stopping:
	case <-l.done:
	}
}

// serve zpracovává zprávy, dokud spojení nespadne nebo není link zastaven.
func (l *Link) serve(ctx context.Context, sess Session, gen uint64) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-l.events:
			if ev.gen != gen {
				// Opožděná událost z předchozí session.
				continue
			}
			if ev.lost {
				if ev.err == nil {
					return errConnectionClosed
				}
				return ev.err
			}
			l.handlePayload(ev.payload)
		}
	}
}

func (l *Link) handlePayload(payload []byte) {
	val, err := l.decode(payload)
	if err != nil {
		// Chyba dat, ne spojení: stav zůstává Connected.
		l.emitError(DecodeError, err)
		return
	}

	reading := model.LiveReading{Value: val, ObservedAt: l.now()}
	for _, o := range l.snapshotObservers() {
		o.OnValue(reading)
	}
}

func (l *Link) wait(ctx context.Context, d time.Duration) bool {
	if d < 0 {
		d = l.maxBackoff
	}
	l.logger.Debug("Broker link čeká před dalším pokusem", "delay", d)

	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (l *Link) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = l.initialBackoff
	b.MaxInterval = l.maxBackoff
	b.RandomizationFactor = l.jitter
	b.Multiplier = 2
	// Nikdy to nevzdáváme, dokud proces běží.
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

func (l *Link) setState(to State) {
	l.mu.Lock()
	from := l.state
	if from == to {
		l.mu.Unlock()
		return
	}
	l.state = to
	obs := l.observers
	l.mu.Unlock()

	l.logger.Info("Broker link změnil stav", "from", from.String(), "to", to.String())
	for _, o := range obs {
		o.OnStateChange(from, to)
	}
}

func (l *Link) emitError(kind ErrorKind, err error) {
	if err == nil {
		err = errConnectionClosed
	}
	e := &Error{Kind: kind, Err: err}
	l.logger.Warn("Broker link hlásí chybu", "kind", kind.String(), "error", err)
	for _, o := range l.snapshotObservers() {
		o.OnError(e)
	}
}

func (l *Link) snapshotObservers() []Observer {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.observers
}
