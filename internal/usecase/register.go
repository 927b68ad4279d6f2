package usecase

import (
	"context"
	"errors"
	"strings"
	"time"

	"pioneer-chat/internal/domain"
	"pioneer-chat/internal/logging"
	"pioneer-chat/internal/observability"
)

type Registrar interface {
	Register(ctx context.Context, in domain.Registration) (string, error)
}

// upstreamRejection is an error carrying a collaborator's status and body.
type upstreamRejection interface {
	HTTPStatusCode() int
	ResponseBody() string
}

type RegisterService struct {
	registrar Registrar
	metrics   *observability.Metrics
}

type RegisterInput struct {
	Email    string
	Name     string
	Timezone string
}

type RegisterOutput struct {
	UserID  string
	Message string
}

func NewRegisterService(r Registrar, metrics *observability.Metrics) (*RegisterService, error) {
	if r == nil {
		return nil, errors.New("usecase: registrar must not be nil")
	}
	return &RegisterService{registrar: r, metrics: metrics}, nil
}

// Register creates a user with the personalization service. Unlike the chat
// path, any failure here is returned to the caller.
func (s *RegisterService) Register(ctx context.Context, in RegisterInput) (RegisterOutput, error) {
	email := strings.TrimSpace(in.Email)
	if email == "" {
		return RegisterOutput{}, invalidInput("missing_email")
	}

	logger := logging.FromContext(ctx)
	start := time.Now()
	userID, err := s.registrar.Register(ctx, domain.Registration{
		Email:    email,
		Name:     in.Name,
		Timezone: in.Timezone,
	})
	if err != nil {
		s.metrics.ObserveCall("register", observability.OutcomeFailed, time.Since(start))
		logger.Error("registration failed", "endpoint", "/register", "email", email, "status", statusOf(err), "err", err)

		var rejected upstreamRejection
		if errors.As(err, &rejected) {
			return RegisterOutput{}, registrationRejected(rejected.HTTPStatusCode(), rejected.ResponseBody(), err)
		}
		return RegisterOutput{}, registrationFailed(err)
	}
	s.metrics.ObserveCall("register", observability.OutcomeOK, time.Since(start))
	logger.Info("user registered", "user_id", userID)

	return RegisterOutput{
		UserID:  userID,
		Message: "User " + email + " registered successfully",
	}, nil
}
