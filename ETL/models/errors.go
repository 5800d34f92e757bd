package models

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"net"

	"github.com/go-sql-driver/mysql"
)

// ErrorKind классифицирует ошибки конвейера
type ErrorKind string

const (
	KindConnectivity   ErrorKind = "CONNECTIVITY"
	KindSchema         ErrorKind = "SCHEMA"
	KindExtraction     ErrorKind = "EXTRACTION"
	KindValidation     ErrorKind = "VALIDATION"
	KindCleansing      ErrorKind = "CLEANSING"
	KindTransformation ErrorKind = "TRANSFORMATION"
	KindInternal       ErrorKind = "INTERNAL"
)

var (
	ErrUnknownTable    = errors.New("неизвестная таблица")
	ErrUnknownColumn   = errors.New("неизвестная колонка")
	ErrNoActiveVersion = errors.New("нет активной версии измерения")
	ErrRunNotFound     = errors.New("запуск не найден")
	ErrRunClosed       = errors.New("запуск уже закрыт")
)

// PipelineError ошибка фазы с ее классом
type PipelineError struct {
	Kind  ErrorKind
	Phase string
	Err   error
}

// NewPipelineError оборачивает err, сохраняя более точный класс, если он известен
func NewPipelineError(kind ErrorKind, phase string, err error) *PipelineError {
	if inner := KindOf(err); inner == KindConnectivity || inner == KindSchema {
		kind = inner
	}
	return &PipelineError{Kind: kind, Phase: phase, Err: err}
}

// Error возвращает фазу и текст исходной ошибки
func (e *PipelineError) Error() string {
	return fmt.Sprintf("[%s] фаза %s: %v", e.Kind, e.Phase, e.Err)
}

// Unwrap возвращает исходную ошибку
func (e *PipelineError) Unwrap() error {
	return e.Err
}

// KindOf определяет класс ошибки
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}

	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Kind
	}

	if errors.Is(err, ErrUnknownTable) || errors.Is(err, ErrUnknownColumn) {
		return KindSchema
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return KindSchema
	}

	var netErr net.Error
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, mysql.ErrInvalidConn) || errors.As(err, &netErr) {
		return KindConnectivity
	}

	return KindInternal
}
