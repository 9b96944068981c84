package sqlstore

import (
	"fmt"
	"strings"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// recordHandlers builds repository handlers for records keyed by a string id
// column.
func recordHandlers[T any](newRecord func() T, getID func(T) string, setID func(T, string)) repository.ModelHandlers[T] {
	return repository.ModelHandlers[T]{
		NewRecord: newRecord,
		GetID: func(record T) uuid.UUID {
			return parseUUID(getID(record))
		},
		SetID: func(record T, id uuid.UUID) {
			setID(record, id.String())
		},
		GetIdentifier: func() string {
			return "id"
		},
		GetIdentifierValue: func(record T) string {
			return strings.TrimSpace(getID(record))
		},
	}
}

func apiClientHandlers() repository.ModelHandlers[*apiClientRecord] {
	return recordHandlers(
		func() *apiClientRecord { return &apiClientRecord{} },
		func(record *apiClientRecord) string {
			if record == nil {
				return ""
			}
			return record.ID
		},
		func(record *apiClientRecord, id string) {
			if record != nil {
				record.ID = id
			}
		},
	)
}

func orderHandlers() repository.ModelHandlers[*orderRecord] {
	return recordHandlers(
		func() *orderRecord { return &orderRecord{} },
		func(record *orderRecord) string {
			if record == nil {
				return ""
			}
			return record.ID
		},
		func(record *orderRecord, id string) {
			if record != nil {
				record.ID = id
			}
		},
	)
}

func transactionHandlers() repository.ModelHandlers[*transactionRecord] {
	return recordHandlers(
		func() *transactionRecord { return &transactionRecord{} },
		func(record *transactionRecord) string {
			if record == nil {
				return ""
			}
			return record.ID
		},
		func(record *transactionRecord, id string) {
			if record != nil {
				record.ID = id
			}
		},
	)
}

func webhookDeliveryHandlers() repository.ModelHandlers[*webhookDeliveryRecord] {
	return recordHandlers(
		func() *webhookDeliveryRecord { return &webhookDeliveryRecord{} },
		func(record *webhookDeliveryRecord) string {
			if record == nil {
				return ""
			}
			return record.ID
		},
		func(record *webhookDeliveryRecord, id string) {
			if record != nil {
				record.ID = id
			}
		},
	)
}

func parseUUID(value string) uuid.UUID {
	parsed, err := uuid.Parse(strings.TrimSpace(value))
	if err != nil {
		return uuid.Nil
	}
	return parsed
}

func newRepository[T any](db *bun.DB, handlers repository.ModelHandlers[T], name string) (repository.Repository[T], error) {
	repo := repository.NewRepository[T](db, handlers)
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid %s repository wiring: %w", name, err)
		}
	}
	return repo, nil
}
