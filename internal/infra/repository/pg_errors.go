package repository

import (
	"errors"
	"fmt"

	domainrepo "localshop/internal/repository"

	"github.com/jackc/pgx/v5/pgconn"
)

// unique_violation
const pgUniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

// unique違反だけErrDuplicateに寄せる。それ以外はそのまま
func translateWriteErr(err error) error {
	if err == nil {
		return nil
	}
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %v", domainrepo.ErrDuplicate, err)
	}
	return err
}
