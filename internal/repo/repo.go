package repo

import (
	"errors"

	"gorm.io/gorm"

	"github.com/Skotchmaster/usergate/internal/domain"
)

var ErrUserAlreadyExist = errors.New("username or email already registered")

type GormRepo struct {
	DB *gorm.DB
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.ErrNotFound
	}
	return err
}
