package service

import "github.com/Spolkip/AtlasCoreSite/internal/apperror"

var (
	ErrEmptyCart             = apperror.Validation("missing required order information", nil)
	ErrProductNotFound       = apperror.NotFound("product not found", nil)
	ErrInsufficientStock     = apperror.Validation("not enough stock for product", nil)
	ErrOrderNotFound         = apperror.NotFound("order not found", nil)
	ErrInvalidState          = apperror.Conflict("only pending orders can be cancelled", nil)
	ErrAmountMismatch        = apperror.Validation("payment amount mismatch", nil)
	ErrFulfillmentInProgress = apperror.Conflict("order fulfillment already claimed", nil)

	ErrCodeNotFound    = apperror.NotFound("code not found or is invalid", nil)
	ErrCodeExpired     = apperror.Validation("this code has expired", nil)
	ErrCodeExhausted   = apperror.Validation("this code has reached its usage limit", nil)
	ErrAlreadyUsed     = apperror.Conflict("you have already used this code", nil)
	ErrSelfReferral    = apperror.Validation("you cannot apply your own creator code", nil)
	ErrNoLinkedAccount = apperror.Validation("link your minecraft account before redeeming codes", nil)
	ErrRedeemInFlight  = apperror.Conflict("a redemption for this code is already in progress", nil)
)
