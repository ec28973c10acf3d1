package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/Frodemaneskold/greenup/models"
)

var (
	// ErrInvalidCredentials is returned when no account matches the given
	// identifier and password.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrEmailTaken is returned when registering an email that already has an
	// account.
	ErrEmailTaken = errors.New("email already registered")
)

// AccountService manages the legacy shim's account records.
type AccountService struct {
	Dynamo *DynamoService
}

// Register creates an account. The username defaults to the email's local
// part when empty.
func (s *AccountService) Register(ctx context.Context, email, password, username string) (*models.Account, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if !models.ValidEmail(email) {
		return nil, fmt.Errorf("invalid email %q", email)
	}
	if len(password) < 8 {
		return nil, errors.New("password must be at least 8 characters")
	}

	existing, err := s.findByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrEmailTaken
	}

	if username == "" {
		username = email[:strings.IndexByte(email, '@')]
	}
	if !models.ValidUsername(username) {
		return nil, fmt.Errorf("invalid username %q", username)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	account := &models.Account{
		UserID:       uuid.New().String(),
		Username:     username,
		Email:        email,
		PasswordHash: string(hash),
		CreatedAt:    time.Now().UTC().Format(time.RFC3339),
	}
	if err := s.Dynamo.PutItem(ctx, models.AccountsTable, account); err != nil {
		return nil, err
	}
	return account, nil
}

// Authenticate resolves an identifier (email or username) and password to an
// account.
func (s *AccountService) Authenticate(ctx context.Context, identifier, password string) (*models.Account, error) {
	identifier = strings.TrimSpace(identifier)
	var account *models.Account
	var err error
	if strings.ContainsRune(identifier, '@') {
		account, err = s.findByEmail(ctx, strings.ToLower(identifier))
	} else {
		account, err = s.findByIndex(ctx, models.AccountsUsernameIndex, "username", identifier)
	}
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, ErrInvalidCredentials
	}
	if bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}
	return account, nil
}

// GetAccount fetches an account by id.
func (s *AccountService) GetAccount(ctx context.Context, userID string) (*models.Account, error) {
	var account models.Account
	err := s.Dynamo.GetItem(ctx, models.AccountsTable, map[string]types.AttributeValue{
		"userId": &types.AttributeValueMemberS{Value: userID},
	}, &account)
	if err != nil {
		return nil, err
	}
	return &account, nil
}

// AddCO2 adds saved kilograms to the account's aggregate counter and returns
// the new total.
func (s *AccountService) AddCO2(ctx context.Context, userID string, kg float64) (float64, error) {
	attrs, err := s.Dynamo.UpdateItem(ctx, models.AccountsTable,
		"ADD totalCo2Saved :kg",
		map[string]types.AttributeValue{
			"userId": &types.AttributeValueMemberS{Value: userID},
		},
		map[string]types.AttributeValue{
			":kg": &types.AttributeValueMemberN{Value: fmt.Sprintf("%g", kg)},
		},
	)
	if err != nil {
		return 0, err
	}
	var updated models.Account
	if err := attributevalue.UnmarshalMap(attrs, &updated); err != nil {
		return 0, fmt.Errorf("unmarshal updated account: %w", err)
	}
	return updated.TotalCO2Saved, nil
}

func (s *AccountService) findByEmail(ctx context.Context, email string) (*models.Account, error) {
	return s.findByIndex(ctx, models.AccountsEmailIndex, "email", email)
}

func (s *AccountService) findByIndex(ctx context.Context, index, attribute, value string) (*models.Account, error) {
	items, err := s.Dynamo.QueryItemsWithIndex(ctx, models.AccountsTable, index,
		attribute+" = :v",
		map[string]types.AttributeValue{
			":v": &types.AttributeValueMemberS{Value: value},
		}, 1)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}
	var account models.Account
	if err := attributevalue.UnmarshalMap(items[0], &account); err != nil {
		return nil, fmt.Errorf("unmarshal account: %w", err)
	}
	return &account, nil
}
