package delivery

import "errors"

// permanentError — ошибка доставки, при которой повторы бессмысленны.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent помечает ошибку как постоянную: задание уходит в терминальный
// статус без расходования оставшихся попыток.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent проверяет, помечена ли ошибка как постоянная.
func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}

// bounceError — адрес получателя отвергнут принимающей стороной.
type bounceError struct {
	err error
}

func (e *bounceError) Error() string { return e.err.Error() }
func (e *bounceError) Unwrap() error { return e.err }

// Bounce помечает ошибку как bounce: задание переводится в bounced.
func Bounce(err error) error {
	if err == nil {
		return nil
	}
	return &bounceError{err: err}
}

// IsBounce проверяет, является ли ошибка bounce.
func IsBounce(err error) bool {
	var be *bounceError
	return errors.As(err, &be)
}
