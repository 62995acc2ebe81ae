package errors

import (
	"errors"
	"fmt"
)

var (
	// Токены и авторизация
	ErrInvalidSigningMethod = errors.New("неверный метод подписи токена")
	ErrInvalidToken         = errors.New("недопустимый токен")
	ErrTokenExpired         = errors.New("срок действия токена истёк")
	ErrEmptyAuthHeader      = errors.New("заголовок авторизации отсутствует")
	ErrInvalidAuthHeader    = errors.New("неверный формат заголовка авторизации")
	ErrUnauthorized         = errors.New("неавторизован")

	// Общие
	ErrNotFound   = errors.New("запись не найдена")
	ErrBadRequest = errors.New("неверный запрос")

	// Синхронизация
	ErrSyncInProgress   = errors.New("синхронизация этого источника уже выполняется")
	ErrUsernameFrozen   = errors.New("имя пользователя заблокировано правилом генерации tenant ID")
	ErrUnknownPlugin    = errors.New("неизвестный тип плагина")
	ErrDataSourceOff    = errors.New("источник данных выключен")
	ErrUserSheetMissing = errors.New("лист 'users' не найден в файле")
	ErrSheetColumns     = errors.New("колонки листа не совпадают с ожидаемыми")
)

// HttpError переносит статус-код до границы API; внутренние слои
// оборачивают только обычные ошибки.
type HttpError struct {
	Code    int
	Message string
	Err     error
	Details map[string]string
}

func (e *HttpError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *HttpError) Unwrap() error { return e.Err }

func NewHttpError(code int, message string, err error, details map[string]string) *HttpError {
	return &HttpError{Code: code, Message: message, Err: err, Details: details}
}

type InvalidInputError struct {
	Message string
}

func (e *InvalidInputError) Error() string { return e.Message }

func NewInvalidInputError(format string, args ...interface{}) error {
	return &InvalidInputError{Message: fmt.Sprintf(format, args...)}
}
