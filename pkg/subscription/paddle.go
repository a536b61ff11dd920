package subscription

import (
	"context"
	"errors"
	"fmt"
	"strings"

	paddle "github.com/PaddleHQ/paddle-go-sdk/v4"
)

// PaddleConfig holds configuration for the Paddle payment gateway.
type PaddleConfig struct {
	APIKey      string `env:"PADDLE_API_KEY,required"`
	Environment string `env:"PADDLE_ENVIRONMENT" envDefault:"production"`
}

// PaddleGateway implements Gateway on top of Paddle's transactions API.
// Charges are catalog-based: the plan's ProviderPriceID must reference a
// Paddle price object.
type PaddleGateway struct {
	client *paddle.SDK
	config PaddleConfig
}

// NewPaddleGateway creates a Paddle-backed payment gateway.
func NewPaddleGateway(config PaddleConfig) (*PaddleGateway, error) {
	if config.APIKey == "" {
		return nil, ErrMissingAPIKey
	}

	var client *paddle.SDK
	var err error

	switch strings.ToLower(config.Environment) {
	case "sandbox":
		client, err = paddle.NewSandbox(config.APIKey)
	case "production", "":
		client, err = paddle.New(config.APIKey)
	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalidGatewayEnvironment, config.Environment)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create paddle client: %w", err)
	}

	return &PaddleGateway{client: client, config: config}, nil
}

// Charge creates a Paddle transaction for the subscription's price object.
// The subject reference and payment token travel in custom data so webhook
// consumers can correlate the payment back to the subscription record.
func (g *PaddleGateway) Charge(ctx context.Context, req ChargeRequest) (*ChargeResult, error) {
	if req.PriceID == "" {
		return nil, ErrMissingPriceID
	}

	item := paddle.NewCreateTransactionItemsTransactionItemFromCatalog(&paddle.TransactionItemFromCatalog{
		PriceID:  req.PriceID,
		Quantity: 1,
	})

	transactionReq := &paddle.CreateTransactionRequest{
		Items: []paddle.CreateTransactionItems{*item},
		CustomData: paddle.CustomData{
			"subscription_id": req.SubscriptionID.String(),
			"subject_id":      req.SubjectID.String(),
		},
	}
	if req.Token != "" {
		transactionReq.CustomData["payment_token"] = req.Token
	}

	transaction, err := g.client.TransactionsClient.CreateTransaction(ctx, transactionReq)
	if err != nil {
		return nil, errors.Join(ErrChargeFailed, err)
	}

	return &ChargeResult{Reference: transaction.ID}, nil
}
