package domain

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// StepType — тип шага автоматизации.
type StepType string

// Типы шагов.
const (
	StepTypeSendMail         StepType = "sendMail"
	StepTypeSendWebhook      StepType = "sendWebhook"
	StepTypeWaitSubscriber   StepType = "waitSubscriber"
	StepTypeMoveSubscriber   StepType = "moveSubscriber"
	StepTypeRemoveSubscriber StepType = "removeSubscriber"
	StepTypeDeleteSubscriber StepType = "deleteSubscriber"
)

// IsValid проверяет, известен ли тип шага.
func (t StepType) IsValid() bool {
	switch t {
	case StepTypeSendMail, StepTypeSendWebhook, StepTypeWaitSubscriber,
		StepTypeMoveSubscriber, StepTypeRemoveSubscriber, StepTypeDeleteSubscriber:
		return true
	default:
		return false
	}
}

// Ошибки валидации шагов.
var (
	// ErrUnknownStepType — неизвестный тип шага.
	ErrUnknownStepType = errors.New("unknown step type")

	// ErrStepShape — шаг содержит поля чужого варианта или не содержит своих.
	ErrStepShape = errors.New("step config does not match step type")
)

// Step — один шаг flow. Tagged union по полю Type.
//
// Инвариант: заполнена ровно та секция конфигурации, которая соответствует
// Type; все остальные секции — nil. Нарушение отклоняется в Validate()
// при создании/редактировании flow, а не в момент выполнения.
type Step struct {
	// Type — дискриминатор варианта.
	Type StepType `json:"type"`

	// SendMail — конфигурация для sendMail.
	SendMail *SendMailStep `json:"send_mail,omitempty"`

	// SendWebhook — конфигурация для sendWebhook.
	SendWebhook *SendWebhookStep `json:"send_webhook,omitempty"`

	// Wait — конфигурация для waitSubscriber.
	Wait *WaitStep `json:"wait,omitempty"`

	// Move — конфигурация для moveSubscriber.
	Move *MoveStep `json:"move,omitempty"`

	// Remove — конфигурация для removeSubscriber.
	Remove *RemoveStep `json:"remove,omitempty"`

	// deleteSubscriber не несёт конфигурации.
}

// SendMailStep — отправка письма по шаблону.
type SendMailStep struct {
	// TemplateID — ссылка на шаблон письма.
	TemplateID string `json:"template_id"`
}

// SendWebhookStep — вызов внешнего HTTP endpoint.
type SendWebhookStep struct {
	// URL — адрес webhook.
	URL string `json:"url"`

	// Method — HTTP-метод (GET, POST, PUT, DELETE). Default: GET.
	Method string `json:"method,omitempty"`

	// RetryAttempts — сколько повторов шага допускается сверх первой попытки.
	RetryAttempts int `json:"retry_attempts,omitempty"`

	// RetryAfterSec — задержка между повторами шага, в секундах.
	RetryAfterSec int `json:"retry_after_sec,omitempty"`

	// Params — биндинги query-параметров.
	Params []ParamBinding `json:"params,omitempty"`
}

// ParamSource — источник значения query-параметра webhook.
type ParamSource string

const (
	// ParamSourceStatic — статическое значение из конфигурации шага.
	ParamSourceStatic ParamSource = "static"

	// ParamSourceContactEmail — email контакта, для которого выполняется шаг.
	ParamSourceContactEmail ParamSource = "contactEmail"
)

// ParamBinding — один query-параметр webhook: статическое значение
// или значение, производное от контакта.
type ParamBinding struct {
	// Key — имя query-параметра.
	Key string `json:"key"`

	// Source — источник значения. Пустой Source трактуется как static.
	Source ParamSource `json:"source,omitempty"`

	// Value — значение для source=static.
	Value string `json:"value,omitempty"`
}

// WaitUnit — единица измерения длительности ожидания.
type WaitUnit string

const (
	WaitUnitSeconds WaitUnit = "seconds"
	WaitUnitMinutes WaitUnit = "minutes"
	WaitUnitHours   WaitUnit = "hours"
	WaitUnitDays    WaitUnit = "days"
	WaitUnitWeeks   WaitUnit = "weeks"
	WaitUnitMonths  WaitUnit = "months"
)

// WaitStep — пауза перед следующим шагом.
type WaitStep struct {
	// Duration — длительность в единицах Unit.
	Duration int `json:"duration"`

	// Unit — единица измерения.
	Unit WaitUnit `json:"unit"`
}

// Delay конвертирует длительность в time.Duration.
// Месяц считается как 30 дней.
func (w *WaitStep) Delay() (time.Duration, error) {
	d := time.Duration(w.Duration)
	switch w.Unit {
	case WaitUnitSeconds:
		return d * time.Second, nil
	case WaitUnitMinutes:
		return d * time.Minute, nil
	case WaitUnitHours:
		return d * time.Hour, nil
	case WaitUnitDays:
		return d * 24 * time.Hour, nil
	case WaitUnitWeeks:
		return d * 7 * 24 * time.Hour, nil
	case WaitUnitMonths:
		return d * 30 * 24 * time.Hour, nil
	default:
		return 0, fmt.Errorf("unknown wait unit %q", w.Unit)
	}
}

// MoveStep — перемещение контакта в другой список.
type MoveStep struct {
	// TargetListID — список назначения.
	TargetListID string `json:"target_list_id"`
}

// RemoveStep — удаление контакта из списка.
type RemoveStep struct {
	// ListID — список, из которого удаляется контакт.
	ListID string `json:"list_id"`
}

// Validate проверяет форму шага: заполнена ровно секция, соответствующая Type,
// и её обязательные поля валидны.
func (s *Step) Validate() error {
	if !s.Type.IsValid() {
		return fmt.Errorf("%w: %q", ErrUnknownStepType, s.Type)
	}

	// Считаем заполненные секции — должна быть ровно одна нужная (или ноль для delete).
	populated := 0
	if s.SendMail != nil {
		populated++
	}
	if s.SendWebhook != nil {
		populated++
	}
	if s.Wait != nil {
		populated++
	}
	if s.Move != nil {
		populated++
	}
	if s.Remove != nil {
		populated++
	}

	switch s.Type {
	case StepTypeSendMail:
		if s.SendMail == nil || populated != 1 {
			return fmt.Errorf("%w: sendMail requires only send_mail config", ErrStepShape)
		}
		if s.SendMail.TemplateID == "" {
			return fmt.Errorf("%w: sendMail requires template_id", ErrStepShape)
		}

	case StepTypeSendWebhook:
		if s.SendWebhook == nil || populated != 1 {
			return fmt.Errorf("%w: sendWebhook requires only send_webhook config", ErrStepShape)
		}
		return s.SendWebhook.validate()

	case StepTypeWaitSubscriber:
		if s.Wait == nil || populated != 1 {
			return fmt.Errorf("%w: waitSubscriber requires only wait config", ErrStepShape)
		}
		if s.Wait.Duration <= 0 {
			return fmt.Errorf("%w: wait duration must be positive", ErrStepShape)
		}
		if _, err := s.Wait.Delay(); err != nil {
			return fmt.Errorf("%w: %v", ErrStepShape, err)
		}

	case StepTypeMoveSubscriber:
		if s.Move == nil || populated != 1 {
			return fmt.Errorf("%w: moveSubscriber requires only move config", ErrStepShape)
		}
		if s.Move.TargetListID == "" {
			return fmt.Errorf("%w: moveSubscriber requires target_list_id", ErrStepShape)
		}

	case StepTypeRemoveSubscriber:
		if s.Remove == nil || populated != 1 {
			return fmt.Errorf("%w: removeSubscriber requires only remove config", ErrStepShape)
		}
		if s.Remove.ListID == "" {
			return fmt.Errorf("%w: removeSubscriber requires list_id", ErrStepShape)
		}

	case StepTypeDeleteSubscriber:
		if populated != 0 {
			return fmt.Errorf("%w: deleteSubscriber carries no config", ErrStepShape)
		}
	}

	return nil
}

// validate проверяет конфигурацию webhook-шага.
func (c *SendWebhookStep) validate() error {
	if c.URL == "" {
		return fmt.Errorf("%w: sendWebhook requires url", ErrStepShape)
	}

	switch c.Method {
	case "", http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete:
	default:
		return fmt.Errorf("%w: unsupported webhook method %q", ErrStepShape, c.Method)
	}

	if c.RetryAttempts < 0 || c.RetryAfterSec < 0 {
		return fmt.Errorf("%w: webhook retry settings must be non-negative", ErrStepShape)
	}

	for _, p := range c.Params {
		if p.Key == "" {
			return fmt.Errorf("%w: webhook param requires key", ErrStepShape)
		}
		switch p.Source {
		case "", ParamSourceStatic, ParamSourceContactEmail:
		default:
			return fmt.Errorf("%w: unknown param source %q", ErrStepShape, p.Source)
		}
	}

	return nil
}

// ValidateSteps проверяет последовательность шагов flow.
func ValidateSteps(steps []Step) error {
	if len(steps) == 0 {
		return fmt.Errorf("%w: flow requires at least one step", ErrStepShape)
	}
	for i := range steps {
		if err := steps[i].Validate(); err != nil {
			return fmt.Errorf("step %d: %w", i, err)
		}
	}
	return nil
}
