package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"basedgift/offchain/internal/models"
)

// giftRow is the database shape of a gift record. visual_assets is stored
// as JSONB and converted at the boundary.
type giftRow struct {
	ID              string     `db:"id"`
	OnChainID       string     `db:"on_chain_id"`
	ChainID         int64      `db:"chain_id"`
	GiftLink        string     `db:"gift_link"`
	SenderAddress   string     `db:"sender_address"`
	ReceiverAddress *string    `db:"receiver_address"`
	TokenType       string     `db:"token_type"`
	TokenAddress    *string    `db:"token_address"`
	TokenID         *string    `db:"token_id"`
	Amount          string     `db:"amount"`
	Message         string     `db:"message"`
	ColorStart      string     `db:"color_start"`
	ColorEnd        string     `db:"color_end"`
	Emoji           string     `db:"emoji"`
	VisualAssets    []byte     `db:"visual_assets"`
	Status          string     `db:"status"`
	EscrowTxHash    *string    `db:"escrow_tx_hash"`
	ClaimTxHash     *string    `db:"claim_tx_hash"`
	CreatedAt       time.Time  `db:"created_at"`
}

func toRow(record *models.GiftRecord) (*giftRow, error) {
	row := &giftRow{
		ID:              record.ID,
		OnChainID:       record.OnChainID,
		ChainID:         record.ChainID,
		GiftLink:        record.GiftLink,
		SenderAddress:   record.SenderAddress,
		ReceiverAddress: record.ReceiverAddress,
		TokenType:       string(record.TokenType),
		TokenAddress:    record.TokenAddress,
		TokenID:         record.TokenID,
		Amount:          record.Amount,
		Message:         record.Message,
		ColorStart:      record.ColorStart,
		ColorEnd:        record.ColorEnd,
		Emoji:           record.Emoji,
		Status:          string(record.Status),
		EscrowTxHash:    record.EscrowTxHash,
		ClaimTxHash:     record.ClaimTxHash,
		CreatedAt:       record.CreatedAt,
	}
	if record.VisualAssets != nil {
		data, err := json.Marshal(record.VisualAssets)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal visual assets: %w", err)
		}
		row.VisualAssets = data
	}
	return row, nil
}

func (r *giftRow) toRecord() (*models.GiftRecord, error) {
	record := &models.GiftRecord{
		ID:              r.ID,
		OnChainID:       r.OnChainID,
		ChainID:         r.ChainID,
		GiftLink:        r.GiftLink,
		SenderAddress:   r.SenderAddress,
		ReceiverAddress: r.ReceiverAddress,
		TokenType:       models.AssetKind(r.TokenType),
		TokenAddress:    r.TokenAddress,
		TokenID:         r.TokenID,
		Amount:          r.Amount,
		Message:         r.Message,
		ColorStart:      r.ColorStart,
		ColorEnd:        r.ColorEnd,
		Emoji:           r.Emoji,
		Status:          models.RecordStatus(r.Status),
		EscrowTxHash:    r.EscrowTxHash,
		ClaimTxHash:     r.ClaimTxHash,
		CreatedAt:       r.CreatedAt,
	}
	if len(r.VisualAssets) > 0 {
		var assets models.VisualAssets
		if err := json.Unmarshal(r.VisualAssets, &assets); err != nil {
			return nil, fmt.Errorf("failed to unmarshal visual assets: %w", err)
		}
		record.VisualAssets = &assets
	}
	return record, nil
}

// CreateGift inserts a new gift record
func (db *DB) CreateGift(ctx context.Context, record *models.GiftRecord) (*models.GiftRecord, error) {
	row, err := toRow(record)
	if err != nil {
		return nil, err
	}

	query := `
		INSERT INTO gifts (
			id, on_chain_id, chain_id, gift_link, sender_address,
			token_type, token_address, token_id, amount, message,
			color_start, color_end, emoji, visual_assets, status, escrow_tx_hash
		)
		VALUES (
			:id, :on_chain_id, :chain_id, :gift_link, :sender_address,
			:token_type, :token_address, :token_id, :amount, :message,
			:color_start, :color_end, :emoji, :visual_assets, :status, :escrow_tx_hash
		)
		RETURNING created_at
	`
	rows, err := db.NamedQueryContext(ctx, query, row)
	if err != nil {
		return nil, fmt.Errorf("failed to insert gift: %w", err)
	}
	defer rows.Close()

	if rows.Next() {
		if err := rows.Scan(&row.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan created_at: %w", err)
		}
	}

	return row.toRecord()
}

// GetGift retrieves a gift by id, nil when absent
func (db *DB) GetGift(ctx context.Context, id string) (*models.GiftRecord, error) {
	var row giftRow
	query := `
		SELECT id, on_chain_id, chain_id, gift_link, sender_address,
		       receiver_address, token_type, token_address, token_id, amount,
		       message, color_start, color_end, emoji, visual_assets, status,
		       escrow_tx_hash, claim_tx_hash, created_at
		FROM gifts
		WHERE id = $1
	`
	err := db.GetContext(ctx, &row, query, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get gift: %w", err)
	}
	return row.toRecord()
}

// SeedDemoGift inserts a fixed demo record for local development. Existing
// rows are left alone.
func (db *DB) SeedDemoGift(ctx context.Context) error {
	escrowTx := "0x1234567890abcdef1234567890abcdef1234567890abcdef1234567890abcdef"
	demo := &models.GiftRecord{
		ID:            "demo-gift-123",
		OnChainID:     "0x0000000000000000000000000000000000000064656d6f2d676966742d313233",
		ChainID:       84532,
		SenderAddress: "0x742d35Cc6634C0532925a3b844Bc9e7595f0bEb0",
		TokenType:     models.AssetUSDC,
		Amount:        "25",
		Message:       "Happy Birthday! Enjoy your gift!",
		ColorStart:    "#667eea",
		ColorEnd:      "#764ba2",
		Emoji:         "🎁",
		Status:        models.RecordStatusCreated,
		EscrowTxHash:  &escrowTx,
	}

	row, err := toRow(demo)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO gifts (
			id, on_chain_id, chain_id, gift_link, sender_address,
			token_type, token_address, token_id, amount, message,
			color_start, color_end, emoji, visual_assets, status, escrow_tx_hash
		)
		VALUES (
			:id, :on_chain_id, :chain_id, :gift_link, :sender_address,
			:token_type, :token_address, :token_id, :amount, :message,
			:color_start, :color_end, :emoji, :visual_assets, :status, :escrow_tx_hash
		)
		ON CONFLICT (id) DO NOTHING
	`
	if _, err := db.NamedExecContext(ctx, query, row); err != nil {
		return fmt.Errorf("failed to seed demo gift: %w", err)
	}
	return nil
}

// UpdateGiftClaimed marks a gift claimed. Claimed is terminal: repeating the
// update refreshes the receiver and tx hash but the status never reverts.
func (db *DB) UpdateGiftClaimed(ctx context.Context, id, receiverAddress, claimTxHash string) (*models.GiftRecord, error) {
	query := `
		UPDATE gifts
		SET status = 'claimed',
		    receiver_address = $2,
		    claim_tx_hash = $3
		WHERE id = $1
	`
	result, err := db.ExecContext(ctx, query, id, receiverAddress, claimTxHash)
	if err != nil {
		return nil, fmt.Errorf("failed to update gift: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to read update result: %w", err)
	}
	if affected == 0 {
		return nil, nil
	}
	return db.GetGift(ctx, id)
}
