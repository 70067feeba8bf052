package mediator

import (
	"errors"
	"fmt"
	"reflect"
)

var (
	ErrInvalidRequest        = errors.New("invalid request")
	ErrOrphanedHandler       = errors.New("orphaned handler")
	ErrAmbiguousHandler      = errors.New("ambiguous handler")
	ErrHandlerAlreadyExists  = errors.New("handler already exists")
	ErrInvalidRegistration   = errors.New("invalid registration")
	ErrInvalidHandler        = errors.New("invalid handler")
	ErrInvalidMessage        = errors.New("invalid message")
	ErrUnknownMessageType    = errors.New("unknown message type")
	ErrUnsupportedRequest    = errors.New("unsupported request")
	ErrPublishFailed         = errors.New("failed to publish message")
	ErrSubscribeFailed       = errors.New("failed to subscribe to transport")
	ErrTransportNotConnected = errors.New("transport not connected")
	ErrBusAlreadyStarted     = errors.New("bus already started")
	ErrBusNotStarted         = errors.New("bus not started")
)

// OrphanedHandlerError is returned when no handler matched a request.
type OrphanedHandlerError struct {
	Marker      Marker
	RequestType reflect.Type
	// ResultType is set for queries only.
	ResultType reflect.Type
}

func (e *OrphanedHandlerError) Error() string {
	msg := fmt.Sprintf("unable to retrieve a %s for the specified %s: %s",
		e.Marker, e.Marker.Family(), typeName(e.RequestType))
	if e.ResultType != nil {
		msg += " returning " + typeName(e.ResultType)
	}
	return msg
}

func (e *OrphanedHandlerError) Is(target error) bool {
	return target == ErrOrphanedHandler
}

// AmbiguousHandlerError is returned when more than one query handler could answer a query.
type AmbiguousHandlerError struct {
	RequestType reflect.Type
	ResultType  reflect.Type
	Candidates  []string
}

func (e *AmbiguousHandlerError) Error() string {
	return fmt.Sprintf("%d QueryHandler candidates for %s returning %s: %v",
		len(e.Candidates), typeName(e.RequestType), typeName(e.ResultType), e.Candidates)
}

func (e *AmbiguousHandlerError) Is(target error) bool {
	return target == ErrAmbiguousHandler
}
