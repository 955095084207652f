package service

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound возвращается, когда отчет или вложение не существует.
	ErrNotFound = errors.New("not found")
	// ErrStoreUnavailable - признак отказа хранилища (ввод-вывод, повреждение данных, потеря соединения).
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrInvalidFileName возвращается для имен файлов с обходом каталогов.
	ErrInvalidFileName = errors.New("invalid filename")
)

// ValidationError содержит все нарушения, найденные в полях отчета.
type ValidationError struct {
	Message string
	Errors  []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Message, strings.Join(e.Errors, "; "))
}

// FileValidationError содержит все нарушения, найденные во вложениях.
type FileValidationError struct {
	Errors []string
}

func (e *FileValidationError) Error() string {
	return "file validation failed: " + strings.Join(e.Errors, "; ")
}

// StoreUnavailableError оборачивает ошибку хранилища с указанием операции.
type StoreUnavailableError struct {
	Op  string
	Err error
}

func (e *StoreUnavailableError) Error() string {
	return fmt.Sprintf("store unavailable during %s: %v", e.Op, e.Err)
}

func (e *StoreUnavailableError) Unwrap() error { return e.Err }

// Is позволяет проверять ошибку через errors.Is(err, ErrStoreUnavailable).
func (e *StoreUnavailableError) Is(target error) bool {
	return target == ErrStoreUnavailable
}

// CleanupError сигнализирует, что метаданные удалены, а часть файлов удалить не удалось.
type CleanupError struct {
	FileNames []string
	Errs      []error
}

func (e *CleanupError) Error() string {
	return fmt.Sprintf("failed to remove %d stored file(s): %s", len(e.FileNames), strings.Join(e.FileNames, ", "))
}

func (e *CleanupError) Unwrap() []error { return e.Errs }

// Warnings возвращает сообщения для клиента.
func (e *CleanupError) Warnings() []string {
	out := make([]string, 0, len(e.FileNames))
	for _, name := range e.FileNames {
		out = append(out, fmt.Sprintf("Stored file %s could not be removed", name))
	}
	return out
}

// storeError приводит ошибку хранилища к таксономии сервиса.
// ErrNotFound пропускается как есть, остальное становится StoreUnavailableError.
func storeError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) {
		return ErrNotFound
	}
	var sue *StoreUnavailableError
	if errors.As(err, &sue) {
		return err
	}
	return &StoreUnavailableError{Op: op, Err: err}
}
