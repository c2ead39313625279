package driver

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"wasil/internal/types"
)

var (
	ErrNotFound = errors.New("driver not found")
	ErrBanned   = errors.New("driver is banned")
)

type Repo interface {
	Get(ctx context.Context, id types.ID) (*Driver, error)
	SetAvailability(ctx context.Context, id types.ID, available bool) (bool, error)
	SetLocation(ctx context.Context, id types.ID, p types.Point, at time.Time) error
}

// Service is the driver directory the order pipeline and the gateway talk to.
type Service struct {
	repo Repo
	log  *logrus.Logger
}

func NewService(repo Repo, log *logrus.Logger) *Service {
	return &Service{repo: repo, log: log}
}

func (s *Service) FindByID(ctx context.Context, id types.ID) (*Driver, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) SetAvailability(ctx context.Context, id types.ID, available bool) error {
	ok, err := s.repo.SetAvailability(ctx, id, available)
	if err != nil {
		return err
	}
	if !ok {
		d, gerr := s.repo.Get(ctx, id)
		if gerr != nil {
			return gerr
		}
		if d.IsBanned {
			return ErrBanned
		}
		return ErrNotFound
	}
	return nil
}

func (s *Service) UpdateLocation(ctx context.Context, id types.ID, p types.Point) error {
	return s.repo.SetLocation(ctx, id, p, time.Now())
}

// Active implements the order pipeline's driver check.
func (s *Service) Active(ctx context.Context, id types.ID) (bool, error) {
	d, err := s.repo.Get(ctx, id)
	if err != nil {
		return false, err
	}
	return d.Active(), nil
}

// Location reports the driver's last known position; ok is false when no
// position has ever been recorded.
func (s *Service) Location(ctx context.Context, id types.ID) (types.Point, bool, error) {
	d, err := s.repo.Get(ctx, id)
	if err != nil {
		return types.Point{}, false, err
	}
	if d.LocatedAt == nil || d.Location.Zero() {
		return types.Point{}, false, nil
	}
	return d.Location, true, nil
}
