package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shaiso/Mailflow/internal/domain"
	"github.com/shaiso/Mailflow/internal/repo"
)

// executeWait выполняет шаг waitSubscriber: продвигает курсор и
// откладывает следующий шаг на длительность паузы.
func (e *Executor) executeWait(sc *stepContext) Outcome {
	delay, err := sc.step.Wait.Delay()
	if err != nil {
		return Fatal(fmt.Sprintf("wait step: %v", err))
	}
	return SuccessAfter(delay)
}

// executeMove выполняет шаг moveSubscriber: переносит контакт в целевой
// список. Отсутствующий целевой список — fatal.
func (e *Executor) executeMove(ctx context.Context, sc *stepContext) Outcome {
	targetListID, err := uuid.Parse(sc.step.Move.TargetListID)
	if err != nil {
		return Fatal(fmt.Sprintf("invalid target list id %q", sc.step.Move.TargetListID))
	}

	if _, outcome, ok := e.loadContact(ctx, sc); !ok {
		return outcome
	}

	err = e.contacts.MoveToList(ctx, sc.automation.ContactID, targetListID)
	if errors.Is(err, repo.ErrNotFound) {
		return Fatal(fmt.Sprintf("%v: %s", ErrListMissing, targetListID))
	}
	if err != nil {
		return RetryAfter(fmt.Sprintf("move contact: %v", err), sc.settings.DefaultRetryDelay())
	}

	return Success().WithStats(domain.FlowStatsDelta{SubscribersMoved: 1})
}

// executeRemove выполняет шаг removeSubscriber: убирает контакт из
// указанного списка. Контакт вне этого списка — no-op, шаг успешен.
func (e *Executor) executeRemove(ctx context.Context, sc *stepContext) Outcome {
	listID, err := uuid.Parse(sc.step.Remove.ListID)
	if err != nil {
		return Fatal(fmt.Sprintf("invalid list id %q", sc.step.Remove.ListID))
	}

	contact, outcome, ok := e.loadContact(ctx, sc)
	if !ok {
		return outcome
	}

	if contact.ListID == nil || *contact.ListID != listID {
		return Success()
	}

	if err := e.contacts.RemoveFromList(ctx, contact.ID); err != nil {
		return RetryAfter(fmt.Sprintf("remove contact from list: %v", err), sc.settings.DefaultRetryDelay())
	}

	return Success().WithStats(domain.FlowStatsDelta{SubscribersRemoved: 1})
}

// executeDelete выполняет шаг deleteSubscriber: мягко удаляет контакт
// и завершает автоматизацию.
func (e *Executor) executeDelete(ctx context.Context, sc *stepContext) Outcome {
	err := e.contacts.SoftDelete(ctx, sc.automation.ContactID)
	if errors.Is(err, repo.ErrNotFound) {
		// Контакт уже удалён — автоматизация всё равно завершается
		return Terminated()
	}
	if err != nil {
		return RetryAfter(fmt.Sprintf("delete contact: %v", err), sc.settings.DefaultRetryDelay())
	}

	return Terminated().WithStats(domain.FlowStatsDelta{SubscribersDeleted: 1})
}
