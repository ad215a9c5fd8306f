// Package transferdelivery manages delivery layer of transfers.
package transferdelivery

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/go-petr/pet-wallet/internal/domain"
	"github.com/go-petr/pet-wallet/internal/middleware"
	"github.com/go-petr/pet-wallet/pkg/errorspkg"
	"github.com/go-petr/pet-wallet/pkg/moneypkg"
	"github.com/go-petr/pet-wallet/pkg/tokenpkg"
	"github.com/go-petr/pet-wallet/pkg/web"
)

// ErrInvalidAccountID indicates that the destination is not an account id.
var ErrInvalidAccountID = errors.New("to must be a valid account id")

// Service provides service layer interface needed by transfer delivery layer.
//
//go:generate mockgen -source http.go -destination http_mock.go -package transferdelivery
type Service interface {
	Transfer(ctx context.Context, callerAccountID string, req domain.TransferRequest) (domain.TransferResult, error)
}

// Handler facilitates transfer delivery layer logic.
type Handler struct {
	service Service
}

// NewHandler returns transfer handler.
func NewHandler(ts Service) *Handler {
	return &Handler{
		service: ts,
	}
}

type request struct {
	To     string `json:"to" binding:"required"`
	Amount string `json:"amount" binding:"required,money"`
}

// Transfer is the committed transfer as shown to clients.
type Transfer struct {
	ID            string    `json:"id"`
	FromAccountID string    `json:"from_account_id"`
	ToAccountID   string    `json:"to_account_id"`
	Amount        string    `json:"amount"`
	FromBalance   string    `json:"from_balance"`
	CreatedAt     time.Time `json:"created_at"`
}

// Data is the payload of every transfer response.
type Data struct {
	Outcome  domain.Outcome `json:"outcome"`
	Transfer *Transfer      `json:"transfer,omitempty"`
}

// Create handles http request to transfer money from the caller's account.
func (h *Handler) Create(gctx *gin.Context) {
	ctx := gctx.Request.Context()
	l := zerolog.Ctx(ctx)

	var req request
	if err := gctx.ShouldBindJSON(&req); err != nil {
		l.Info().Err(err).Send()

		var ve validator.ValidationErrors
		if errors.As(err, &ve) {
			gctx.JSON(http.StatusBadRequest, web.Response{Error: web.GetErrorMsg(ve)})

			return
		}

		gctx.JSON(http.StatusBadRequest, web.Error(err))

		return
	}

	// The money validator already accepted the amount.
	amount, err := moneypkg.Parse(req.Amount)
	if err != nil {
		l.Info().Err(err).Send()
		gctx.JSON(http.StatusBadRequest, web.Error(err))

		return
	}

	// Any spelling uuid.Parse accepts is reduced to the stored form.
	to, err := uuid.Parse(req.To)
	if err != nil {
		l.Info().Err(err).Str("to", req.To).Send()
		gctx.JSON(http.StatusBadRequest, web.Error(ErrInvalidAccountID))

		return
	}

	authPayload := gctx.MustGet(middleware.AuthPayloadKey).(*tokenpkg.Payload)

	arg := domain.TransferRequest{
		FromAccountID: authPayload.AccountID,
		ToAccountID:   to.String(),
		Amount:        amount,
	}

	result, err := h.service.Transfer(ctx, authPayload.AccountID, arg)
	if err != nil {
		res := web.Error(err)
		res.Data = Data{Outcome: result.Outcome}

		switch err {
		case domain.ErrInvalidAmount, domain.ErrSelfTransfer, domain.ErrInsufficientBalance:
			gctx.JSON(http.StatusBadRequest, res)
			return
		case domain.ErrAccountNotFound:
			gctx.JSON(http.StatusNotFound, res)
			return
		case domain.ErrTransient:
			gctx.JSON(http.StatusServiceUnavailable, res)
			return
		}

		l.Error().Err(err).Send()

		res = web.Error(errorspkg.ErrInternal)
		res.Data = Data{Outcome: domain.OutcomeTransientFailure}
		gctx.JSON(http.StatusInternalServerError, res)

		return
	}

	res := web.Response{
		Data: Data{
			Outcome: result.Outcome,
			Transfer: &Transfer{
				ID:            result.ID,
				FromAccountID: result.FromAccountID,
				ToAccountID:   result.ToAccountID,
				Amount:        moneypkg.Format(result.Amount),
				FromBalance:   moneypkg.Format(result.FromBalance),
				CreatedAt:     result.CreatedAt,
			},
		},
	}

	gctx.JSON(http.StatusOK, res)
}
