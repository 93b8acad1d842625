package delivery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/jemo-app/jemo-backend/pkg/cities"
	"github.com/jemo-app/jemo-backend/pkg/db"
	"github.com/jemo-app/jemo-backend/pkg/db/models"
	"github.com/jemo-app/jemo-backend/pkg/enums"
	pkgerrors "github.com/jemo-app/jemo-backend/pkg/errors"
	"github.com/jemo-app/jemo-backend/pkg/logger"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// orderTransitioner moves the parent order alongside a job transition, inside
// the job's transaction.
type orderTransitioner interface {
	MarkOrderInTransit(ctx context.Context, tx *gorm.DB, orderID, agencyID uuid.UUID) error
	MarkOrderDelivered(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) error
}

// Service matches open delivery jobs to agencies. A job is assigned exactly
// once: the first accept wins through a conditional claim, every later
// attempt gets a conflict.
type Service interface {
	CreateJob(ctx context.Context, tx *gorm.DB, input CreateJobInput) (*models.DeliveryJob, error)
	FindAvailable(ctx context.Context, agencyID uuid.UUID) ([]models.DeliveryJob, error)
	Accept(ctx context.Context, agencyID, jobID uuid.UUID) (*models.DeliveryJob, error)
	MarkDelivered(ctx context.Context, agencyID, jobID uuid.UUID) (*models.DeliveryJob, error)
	CancelForOrder(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, actorType enums.ActorType, actorID uuid.UUID) error
	Quote(ctx context.Context, pickupCity, dropoffCity string) (*QuoteResult, error)
	Get(ctx context.Context, jobID uuid.UUID) (*models.DeliveryJob, error)
	FindByOrder(ctx context.Context, orderID uuid.UUID) (*models.DeliveryJob, error)
	History(ctx context.Context, jobID uuid.UUID) ([]models.DeliveryJobLog, error)
}

// CreateJobInput carries a new job for a confirmed order.
type CreateJobInput struct {
	OrderID     uuid.UUID
	PickupCity  string
	DropoffCity string
	Fee         int64
}

// QuoteResult names the cheapest active agency covering a pickup city and the
// fee it would charge for the route.
type QuoteResult struct {
	AgencyID   uuid.UUID
	AgencyName string
	Fee        int64
	SameCity   bool
}

type service struct {
	repo   Repository
	tx     txRunner
	orders orderTransitioner
	logger *logger.Logger
	now    func() time.Time
}

// NewService wires the delivery matching service.
func NewService(repo Repository, tx txRunner, orders orderTransitioner, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("delivery repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if orders == nil {
		return nil, fmt.Errorf("order transitioner required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo:   repo,
		tx:     tx,
		orders: orders,
		logger: logg,
		now:    time.Now,
	}, nil
}

// jobTransitions is the strict state machine: a transition absent here is
// rejected regardless of who asks.
var jobTransitions = map[enums.DeliveryJobStatus][]enums.DeliveryJobStatus{
	enums.DeliveryJobStatusOpen:     {enums.DeliveryJobStatusAccepted, enums.DeliveryJobStatusCancelled},
	enums.DeliveryJobStatusAccepted: {enums.DeliveryJobStatusDelivered, enums.DeliveryJobStatusCancelled},
}

func canTransition(from, to enums.DeliveryJobStatus) bool {
	for _, allowed := range jobTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

func (s *service) CreateJob(ctx context.Context, tx *gorm.DB, input CreateJobInput) (*models.DeliveryJob, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if input.PickupCity == "" || input.DropoffCity == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "pickup and dropoff cities required")
	}
	if input.Fee < 0 {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "fee must not be negative, got %d", input.Fee)
	}

	job := &models.DeliveryJob{
		OrderID:     input.OrderID,
		Status:      enums.DeliveryJobStatusOpen,
		PickupCity:  cities.Title(input.PickupCity),
		DropoffCity: cities.Title(input.DropoffCity),
		Fee:         input.Fee,
	}
	if err := s.repo.WithTx(tx).CreateJob(ctx, job); err != nil {
		if db.IsUniqueViolation(err, "idx_delivery_jobs_order_id") {
			return nil, pkgerrors.Newf(pkgerrors.CodeConflict, "order %s already has a delivery job", input.OrderID)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create delivery job")
	}
	return job, nil
}

// FindAvailable lists open unassigned jobs whose pickup city falls inside the
// agency's coverage.
func (s *service) FindAvailable(ctx context.Context, agencyID uuid.UUID) ([]models.DeliveryJob, error) {
	agency, err := s.agency(ctx, agencyID)
	if err != nil {
		return nil, err
	}

	open, err := s.repo.ListOpenJobs(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list open jobs")
	}

	matched := make([]models.DeliveryJob, 0, len(open))
	for _, job := range open {
		if cities.Contains(agency.CitiesCovered, job.PickupCity) {
			matched = append(matched, job)
		}
	}
	return matched, nil
}

func (s *service) Accept(ctx context.Context, agencyID, jobID uuid.UUID) (*models.DeliveryJob, error) {
	agency, err := s.agency(ctx, agencyID)
	if err != nil {
		return nil, err
	}
	if !agency.Active {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "agency is not active")
	}

	job, err := s.job(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if !cities.Contains(agency.CitiesCovered, job.PickupCity) {
		return nil, pkgerrors.Newf(pkgerrors.CodeForbidden, "agency does not cover %s", job.PickupCity)
	}

	acceptedAt := s.now().UTC()
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		claimed, err := repo.ClaimJob(ctx, jobID, agencyID, acceptedAt)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim job")
		}
		if !claimed {
			return pkgerrors.New(pkgerrors.CodeConflict, "job already accepted")
		}
		if err := s.log(ctx, repo, jobID, enums.DeliveryJobStatusOpen, enums.DeliveryJobStatusAccepted, enums.ActorTypeAgency, agencyID, ""); err != nil {
			return err
		}
		return s.orders.MarkOrderInTransit(ctx, tx, job.OrderID, agencyID)
	})
	if err != nil {
		return nil, err
	}

	job.Status = enums.DeliveryJobStatusAccepted
	job.AgencyID = &agencyID
	job.AcceptedAt = &acceptedAt

	ctx = s.logger.WithOrderID(ctx, job.OrderID.String())
	s.logger.Info(ctx, fmt.Sprintf("delivery job %s accepted by agency %s", jobID, agencyID))
	return job, nil
}

func (s *service) MarkDelivered(ctx context.Context, agencyID, jobID uuid.UUID) (*models.DeliveryJob, error) {
	job, err := s.job(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.AgencyID == nil || *job.AgencyID != agencyID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "job is not assigned to this agency")
	}
	if !canTransition(job.Status, enums.DeliveryJobStatusDelivered) {
		return nil, pkgerrors.Newf(pkgerrors.CodeStateConflict,
			"job is %s, cannot mark delivered", job.Status)
	}

	deliveredAt := s.now().UTC()
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		applied, err := repo.TransitionJob(ctx, jobID, job.Status, enums.DeliveryJobStatusDelivered, &deliveredAt)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "transition job")
		}
		if !applied {
			return pkgerrors.Newf(pkgerrors.CodeStateConflict, "job left %s concurrently", job.Status)
		}
		if err := s.log(ctx, repo, jobID, job.Status, enums.DeliveryJobStatusDelivered, enums.ActorTypeAgency, agencyID, ""); err != nil {
			return err
		}
		return s.orders.MarkOrderDelivered(ctx, tx, job.OrderID)
	})
	if err != nil {
		return nil, err
	}

	job.Status = enums.DeliveryJobStatusDelivered
	job.DeliveredAt = &deliveredAt
	return job, nil
}

// CancelForOrder cancels the order's open job inside the caller's order
// cancellation transaction. Orders without a job are fine; a job already past
// open cannot be pulled back.
func (s *service) CancelForOrder(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, actorType enums.ActorType, actorID uuid.UUID) error {
	repo := s.repo.WithTx(tx)
	job, err := repo.FindJobByOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load delivery job")
	}
	if job.Status == enums.DeliveryJobStatusCancelled {
		return nil
	}
	if job.Status != enums.DeliveryJobStatusOpen {
		return pkgerrors.Newf(pkgerrors.CodeStateConflict, "delivery job is %s, cannot cancel", job.Status)
	}

	applied, err := repo.TransitionJob(ctx, job.ID, enums.DeliveryJobStatusOpen, enums.DeliveryJobStatusCancelled, nil)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel delivery job")
	}
	if !applied {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "delivery job was accepted concurrently")
	}
	return s.log(ctx, repo, job.ID, enums.DeliveryJobStatusOpen, enums.DeliveryJobStatusCancelled, actorType, actorID, "order cancelled")
}

// Quote picks the cheapest active agency covering the pickup city and prices
// the route by whether dropoff is the same city.
func (s *service) Quote(ctx context.Context, pickupCity, dropoffCity string) (*QuoteResult, error) {
	if pickupCity == "" || dropoffCity == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "pickup and dropoff cities required")
	}

	agencies, err := s.repo.ListActiveAgencies(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list agencies")
	}

	sameCity := cities.Equal(pickupCity, dropoffCity)
	var best *QuoteResult
	for _, agency := range agencies {
		if !cities.Contains(agency.CitiesCovered, pickupCity) {
			continue
		}
		fee := agency.FeeOtherCity
		if sameCity {
			fee = agency.FeeSameCity
		}
		if best == nil || fee < best.Fee {
			best = &QuoteResult{
				AgencyID:   agency.ID,
				AgencyName: agency.Name,
				Fee:        fee,
				SameCity:   sameCity,
			}
		}
	}
	if best == nil {
		return nil, pkgerrors.Newf(pkgerrors.CodeNotFound, "no active agency covers %s", cities.Title(pickupCity))
	}
	return best, nil
}

func (s *service) Get(ctx context.Context, jobID uuid.UUID) (*models.DeliveryJob, error) {
	return s.job(ctx, jobID)
}

func (s *service) FindByOrder(ctx context.Context, orderID uuid.UUID) (*models.DeliveryJob, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	job, err := s.repo.FindJobByOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "delivery job not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load delivery job")
	}
	return job, nil
}

func (s *service) History(ctx context.Context, jobID uuid.UUID) ([]models.DeliveryJobLog, error) {
	if _, err := s.job(ctx, jobID); err != nil {
		return nil, err
	}
	entries, err := s.repo.ListLogs(ctx, jobID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list job logs")
	}
	return entries, nil
}

func (s *service) log(ctx context.Context, repo Repository, jobID uuid.UUID, from, to enums.DeliveryJobStatus, actorType enums.ActorType, actorID uuid.UUID, note string) error {
	entry := &models.DeliveryJobLog{
		JobID:      jobID,
		FromStatus: from,
		ToStatus:   to,
		ActorType:  actorType,
		ActorID:    actorID,
		Note:       note,
	}
	if err := repo.AppendLog(ctx, entry); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record job transition")
	}
	return nil
}

func (s *service) agency(ctx context.Context, agencyID uuid.UUID) (*models.DeliveryAgency, error) {
	if agencyID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "agency id required")
	}
	agency, err := s.repo.FindAgency(ctx, agencyID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "agency not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load agency")
	}
	return agency, nil
}

func (s *service) job(ctx context.Context, jobID uuid.UUID) (*models.DeliveryJob, error) {
	if jobID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "job id required")
	}
	job, err := s.repo.FindJob(ctx, jobID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "delivery job not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load delivery job")
	}
	return job, nil
}
