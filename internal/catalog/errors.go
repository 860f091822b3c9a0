package catalog

import "errors"

// Ошибки каталога и валидатора.
var (
	// ErrIncompleteScope — в ScopeDraft не заполнены обязательные поля.
	ErrIncompleteScope = errors.New("scope draft is incomplete")

	// ErrCapabilityNotFound — возможность не найдена в каталоге.
	ErrCapabilityNotFound = errors.New("capability not found")
)
