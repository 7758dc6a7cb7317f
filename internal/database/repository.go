package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"monad-trade-agent-go/internal/domain"
	"monad-trade-agent-go/internal/ledger"
	"monad-trade-agent-go/internal/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository is the typed data access layer over the models.
type Repository struct {
	db *gorm.DB
}

var _ ledger.Store = (*Repository)(nil)

// NewRepository creates a repository on db.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func toDomain(m models.Position) domain.Position {
	return domain.Position{
		Wallet:        m.Wallet,
		Token:         m.Token,
		Balance:       m.Balance,
		CostBasis:     m.CostBasis,
		EntryPrice:    m.EntryPrice,
		LastFillPrice: m.LastFillPrice,
		RealizedPnl:   m.RealizedPnl,
		UpdatedAt:     m.LastTradeAt,
	}
}

// LoadPosition returns the stored position and whether it exists.
func (r *Repository) LoadPosition(ctx context.Context, wallet, token string) (domain.Position, bool, error) {
	var m models.Position
	err := r.db.WithContext(ctx).Where("wallet = ? AND token = ?", wallet, token).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.Position{}, false, nil
	}
	if err != nil {
		return domain.Position{}, false, err
	}
	return toDomain(m), true, nil
}

// ListPositions returns every stored position of wallet.
func (r *Repository) ListPositions(ctx context.Context, wallet string) ([]domain.Position, error) {
	var rows []models.Position
	if err := r.db.WithContext(ctx).Where("wallet = ?", wallet).Order("token").Find(&rows).Error; err != nil {
		return nil, err
	}
	positions := make([]domain.Position, len(rows))
	for i, m := range rows {
		positions[i] = toDomain(m)
	}
	return positions, nil
}

// HasSettlement reports whether a successful trade with tradeID is stored.
func (r *Repository) HasSettlement(ctx context.Context, tradeID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Trade{}).
		Where("trade_id = ? AND success = ?", tradeID, true).
		Count(&count).Error
	return count > 0, err
}

// SaveSettlement stores a settled trade and the resulting position in one transaction.
// A failure recorded earlier under the same trade id is replaced.
func (r *Repository) SaveSettlement(ctx context.Context, s ledger.Settlement) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Unscoped().Where("trade_id = ? AND success = ?", s.Result.TradeID, false).Delete(&models.Trade{}).Error; err != nil {
			return err
		}

		trade := tradeRow(s.Wallet, s.Result)
		trade.RealizedPnl = s.RealizedPnl
		if err := tx.Create(&trade).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return fmt.Errorf("trade %s: %w", s.Result.TradeID, domain.ErrDuplicateSettlement)
			}
			return err
		}

		pos := models.Position{
			Wallet:        s.Wallet,
			Token:         s.Position.Token,
			Balance:       s.Position.Balance,
			CostBasis:     s.Position.CostBasis,
			EntryPrice:    s.Position.EntryPrice,
			LastFillPrice: s.Position.LastFillPrice,
			RealizedPnl:   s.Position.RealizedPnl,
			LastTradeAt:   s.Position.UpdatedAt,
		}
		return tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "wallet"}, {Name: "token"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"balance", "cost_basis", "entry_price", "last_fill_price", "realized_pnl", "last_trade_at", "updated_at",
			}),
		}).Create(&pos).Error
	})
}

// RecordFailure stores a failed trade for reporting. Repeated failures of one trade id are ignored.
func (r *Repository) RecordFailure(ctx context.Context, wallet string, result domain.TradeResult) error {
	trade := tradeRow(wallet, result)
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&trade).Error
}

func tradeRow(wallet string, result domain.TradeResult) models.Trade {
	settledAt := result.SettledAt
	if settledAt.IsZero() {
		settledAt = time.Now()
	}
	return models.Trade{
		TradeID:        result.TradeID,
		Wallet:         wallet,
		Token:          result.Token,
		Action:         string(result.Action),
		Success:        result.Success,
		TxHash:         result.TxHash,
		AmountIn:       result.AmountIn,
		AmountOut:      result.AmountOut,
		EffectivePrice: result.EffectivePrice,
		RealizedPnl:    decimal.Zero,
		Error:          result.Error,
		IsSimulation:   result.Simulated,
		SettledAt:      settledAt,
	}
}

// WalletExists reports whether wallet is a registered user or has any trade history.
func (r *Repository) WalletExists(ctx context.Context, wallet string) (bool, error) {
	db := r.db.WithContext(ctx)
	for _, model := range []interface{}{&models.User{}, &models.Position{}, &models.Trade{}} {
		column := "wallet"
		if _, ok := model.(*models.User); ok {
			column = "address"
		}
		var count int64
		if err := db.Model(model).Where(column+" = ?", wallet).Count(&count).Error; err != nil {
			return false, err
		}
		if count > 0 {
			return true, nil
		}
	}
	return false, nil
}

// UpsertUser registers an agent wallet or updates its name and strategy.
func (r *Repository) UpsertUser(ctx context.Context, user *models.User) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "address"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "strategy", "updated_at"}),
	}).Create(user).Error
}

// ListUsers returns all registered wallets.
func (r *Repository) ListUsers(ctx context.Context) ([]models.User, error) {
	var users []models.User
	err := r.db.WithContext(ctx).Order("id").Find(&users).Error
	return users, err
}

// TradeFilter narrows a trade listing. Zero values do not filter.
type TradeFilter struct {
	Wallet string
	Token  string
	Since  time.Time
	Limit  int
}

// ListTrades returns trades matching filter, most recent first.
func (r *Repository) ListTrades(ctx context.Context, filter TradeFilter) ([]models.Trade, error) {
	q := r.db.WithContext(ctx).Model(&models.Trade{})
	if filter.Wallet != "" {
		q = q.Where("wallet = ?", filter.Wallet)
	}
	if filter.Token != "" {
		q = q.Where("token = ?", filter.Token)
	}
	if !filter.Since.IsZero() {
		q = q.Where("settled_at >= ?", filter.Since)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}

	var trades []models.Trade
	if err := q.Order("settled_at desc").Order("id desc").Find(&trades).Error; err != nil {
		return nil, err
	}
	return trades, nil
}

// SavePerformance stores a strategy performance snapshot.
func (r *Repository) SavePerformance(ctx context.Context, p *models.StrategyPerformance) error {
	return r.db.WithContext(ctx).Create(p).Error
}

// LatestPerformance returns the most recent snapshot of every wallet.
func (r *Repository) LatestPerformance(ctx context.Context) ([]models.StrategyPerformance, error) {
	latest := r.db.Model(&models.StrategyPerformance{}).Select("MAX(id)").Group("wallet")
	var rows []models.StrategyPerformance
	err := r.db.WithContext(ctx).Where("id IN (?)", latest).Order("wallet").Find(&rows).Error
	return rows, err
}
