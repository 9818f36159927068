package engine

import "errors"

// Ошибки выполнения шагов.
var (
	// ErrTemplateMissing — шаблон письма удалён или не существует.
	// Повторы бессмысленны: автоматизация переводится в failed.
	ErrTemplateMissing = errors.New("email template missing")

	// ErrListMissing — целевой список не существует.
	ErrListMissing = errors.New("target list missing")

	// ErrContactMissing — контакт удалён, автоматизация осиротела.
	ErrContactMissing = errors.New("contact missing")

	// ErrStepMissing — курсор указывает за пределы закреплённой версии шагов.
	ErrStepMissing = errors.New("step index out of range")

	// ErrDailyCapReached — дневной лимит писем клиента исчерпан.
	// Шаг откладывается до следующих суток UTC.
	ErrDailyCapReached = errors.New("daily email cap reached")
)
