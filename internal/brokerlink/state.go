package brokerlink

import (
	"fmt"

	"thermowatch/internal/model"
)

// State je stav spojení s brokerem. V jednom procesu existuje vždy právě jeden.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Reconnecting
	Failed
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Reconnecting:
		return "reconnecting"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// MarshalText umožní posílat stav v JSON jako čitelný string.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// ErrorKind rozlišuje chybu spojení od chyby dat.
type ErrorKind int

const (
	// ConnectionError řídí stavový automat (reconnect), nikdy neukončí proces.
	ConnectionError ErrorKind = iota + 1
	// DecodeError znamená zahozenou zprávu; stav spojení se nemění.
	DecodeError
)

func (k ErrorKind) String() string {
	switch k {
	case ConnectionError:
		return "connection_error"
	case DecodeError:
		return "decode_error"
	}
	return fmt.Sprintf("error_kind(%d)", int(k))
}

// Error je chyba hlášená observerům.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Observer dostává notifikace synchronně na goroutině, která vlastní spojení.
// Implementace nesmí blokovat a nesmí z callbacku volat Link.Stop
// (Stop čeká na dokončení této goroutiny). Pomalou práci přesuňte jinam.
type Observer interface {
	OnStateChange(from, to State)
	OnValue(reading model.LiveReading)
	OnError(err *Error)
}

// ObserverFuncs je adaptér, nevyplněné funkce se ignorují.
type ObserverFuncs struct {
	StateChange func(from, to State)
	Value       func(reading model.LiveReading)
	Err         func(err *Error)
}

func (o ObserverFuncs) OnStateChange(from, to State) {
	if o.StateChange != nil {
		o.StateChange(from, to)
	}
}

func (o ObserverFuncs) OnValue(reading model.LiveReading) {
	if o.Value != nil {
		o.Value(reading)
	}
}

func (o ObserverFuncs) OnError(err *Error) {
	if o.Err != nil {
		o.Err(err)
	}
}
