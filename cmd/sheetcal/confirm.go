package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/manifoldco/promptui"

	"sheetcal/internal/reconcile"
)

// terminalConfirmer asks on the terminal.
type terminalConfirmer struct{}

func (terminalConfirmer) Confirm(ctx context.Context, p reconcile.Prompt) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	fmt.Println(p.Message())
	prompt := promptui.Prompt{
		Label:     "Proceed",
		IsConfirm: true,
	}
	_, err := prompt.Run()
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, promptui.ErrAbort):
		return false, nil
	case errors.Is(err, promptui.ErrInterrupt), errors.Is(err, promptui.ErrEOF):
		return false, context.Canceled
	default:
		return false, err
	}
}

// confirmerFor maps a conflict policy to a Confirmer.
func confirmerFor(policy string) (reconcile.Confirmer, error) {
	switch policy {
	case "approve":
		return reconcile.StaticConfirmer(true), nil
	case "decline":
		return reconcile.StaticConfirmer(false), nil
	case "prompt", "":
		return terminalConfirmer{}, nil
	default:
		return nil, fmt.Errorf("unknown conflict policy %q", policy)
	}
}
