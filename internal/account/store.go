// Package account は保存済みGameFlipクレデンシャルプロファイルの管理を提供する。
// APIシークレットは永続化前に必ずsecret.Cipherで暗号化される。
package account

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/gfbay/internal/model"
)

// keyPrefix はストア上のアカウントリストのキープレフィックス。
// 値はユーザーごとのアカウント配列のJSON。
const keyPrefix = "gf:accounts:"

// Store はアカウントリストの永続化に必要なストア操作のインターフェース。
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// Cipher はシークレットの暗号化・復号インターフェース。
type Cipher interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(blob string) (string, error)
}

// UpdateParams はアカウント更新の入力。nilのフィールドは既存値を維持する。
// 更新は常にレコード全体を書き直す（部分更新はしない）。
type UpdateParams struct {
	Name      *string
	APIKey    *string
	APISecret *string // 平文。保存前に暗号化される。
}

// AccountStore はユーザーごとのアカウントプロファイルを管理する。
type AccountStore struct {
	store  Store
	cipher Cipher
}

// NewAccountStore はAccountStoreを生成する。
func NewAccountStore(store Store, cipher Cipher) *AccountStore {
	return &AccountStore{
		store:  store,
		cipher: cipher,
	}
}

// List はユーザーが所有するアカウントを登録順で返す。
// 1件もない場合は空スライスを返す。
func (s *AccountStore) List(ctx context.Context, userID string) ([]model.Account, error) {
	raw, err := s.store.Get(ctx, keyPrefix+userID)
	if err != nil {
		return nil, fmt.Errorf("account: failed to load accounts: %w", err)
	}
	if raw == nil {
		return []model.Account{}, nil
	}

	var accounts []model.Account
	if err := json.Unmarshal(raw, &accounts); err != nil {
		return nil, fmt.Errorf("account: failed to parse accounts: %w", err)
	}
	return accounts, nil
}

// Find はユーザーが所有する指定IDのアカウントを返す。
// 見つからない場合は (nil, nil) を返す。
func (s *AccountStore) Find(ctx context.Context, userID, accountID string) (*model.Account, error) {
	accounts, err := s.List(ctx, userID)
	if err != nil {
		return nil, err
	}
	for i := range accounts {
		if accounts[i].ID == accountID {
			return &accounts[i], nil
		}
	}
	return nil, nil
}

// Create は新しいアカウントプロファイルを作成する。
// 平文シークレットは暗号化してから保存する。
func (s *AccountStore) Create(ctx context.Context, userID, name, apiKey, apiSecretPlain string) (*model.Account, error) {
	accounts, err := s.List(ctx, userID)
	if err != nil {
		return nil, err
	}

	encrypted, err := s.cipher.Encrypt(apiSecretPlain)
	if err != nil {
		return nil, fmt.Errorf("account: failed to encrypt secret: %w", err)
	}

	now := time.Now().UTC()
	account := model.Account{
		ID:        uuid.New().String(),
		Name:      name,
		APIKey:    apiKey,
		APISecret: encrypted,
		CreatedAt: now,
		UpdatedAt: now,
	}

	accounts = append(accounts, account)
	if err := s.save(ctx, userID, accounts); err != nil {
		return nil, err
	}
	return &account, nil
}

// Update はアカウントを更新する。省略されたフィールドは既存値を維持する。
// accountIDがuserIDの所有でない場合はエラーを出さず (nil, nil) を返す。
func (s *AccountStore) Update(ctx context.Context, userID, accountID string, params UpdateParams) (*model.Account, error) {
	accounts, err := s.List(ctx, userID)
	if err != nil {
		return nil, err
	}

	index := -1
	for i := range accounts {
		if accounts[i].ID == accountID {
			index = i
			break
		}
	}
	if index == -1 {
		return nil, nil
	}

	updated := accounts[index]
	if params.Name != nil {
		updated.Name = *params.Name
	}
	if params.APIKey != nil {
		updated.APIKey = *params.APIKey
	}
	if params.APISecret != nil {
		encrypted, err := s.cipher.Encrypt(*params.APISecret)
		if err != nil {
			return nil, fmt.Errorf("account: failed to encrypt secret: %w", err)
		}
		updated.APISecret = encrypted
	}
	updated.UpdatedAt = time.Now().UTC()

	accounts[index] = updated
	if err := s.save(ctx, userID, accounts); err != nil {
		return nil, err
	}
	return &updated, nil
}

// Delete は指定IDのアカウントを削除する。
// 削除が発生した場合にtrueを返す。
func (s *AccountStore) Delete(ctx context.Context, userID, accountID string) (bool, error) {
	accounts, err := s.List(ctx, userID)
	if err != nil {
		return false, err
	}

	next := accounts[:0:0]
	for _, a := range accounts {
		if a.ID != accountID {
			next = append(next, a)
		}
	}
	if len(next) == len(accounts) {
		return false, nil
	}

	if err := s.save(ctx, userID, next); err != nil {
		return false, err
	}
	return true, nil
}

// DecryptSecret はアカウントの暗号化済みシークレットを復号して平文を返す。
func (s *AccountStore) DecryptSecret(account *model.Account) (string, error) {
	return s.cipher.Decrypt(account.APISecret)
}

// Scrub は外部返却用にシークレットを取り除いたアカウント表現を返す。
// アカウントデータを外部に返すときは必ずこのパスを通すこと。
func Scrub(account *model.Account) model.ScrubbedAccount {
	return model.ScrubbedAccount{
		ID:        account.ID,
		Name:      account.Name,
		APIKey:    account.APIKey,
		CreatedAt: account.CreatedAt,
		UpdatedAt: account.UpdatedAt,
	}
}

// save はユーザーのアカウントリスト全体を書き込む。
func (s *AccountStore) save(ctx context.Context, userID string, accounts []model.Account) error {
	raw, err := json.Marshal(accounts)
	if err != nil {
		return fmt.Errorf("account: failed to encode accounts: %w", err)
	}
	if err := s.store.Set(ctx, keyPrefix+userID, raw); err != nil {
		return fmt.Errorf("account: failed to save accounts: %w", err)
	}
	return nil
}
