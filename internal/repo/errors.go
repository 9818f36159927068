package repo

import "errors"

// Общие ошибки репозиториев.
var (
	// ErrNotFound — запись не найдена в БД.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists — запись уже существует (конфликт уникальности).
	ErrAlreadyExists = errors.New("already exists")

	// ErrClaimLost — условное обновление аренды не затронуло строк:
	// автоматизацию уже захватил другой воркер. Не ошибка — пропуск цикла.
	ErrClaimLost = errors.New("claim lost")

	// ErrInvalidState — операция невозможна в текущем состоянии.
	ErrInvalidState = errors.New("invalid state")
)
