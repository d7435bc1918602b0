package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SaveExchange stores an exchange and updates its conversation's counters.
// Saving the same exchange id twice is a no-op. Exchanges may arrive in any
// order; a start saved after a message of its conversation still fills in the
// initial message.
func SaveExchange(ctx context.Context, db *gorm.DB, exchange *Exchange) error {
	return db.WithContext(ctx).Transaction(func(txn *gorm.DB) error {
		if exchange.ConversationId.Valid {
			conversation := Conversation{Id: exchange.ConversationId.String}
			attrs := Conversation{CreationTime: exchange.Timestamp, LastActivity: exchange.Timestamp}
			if exchange.Kind == ExchangeStart {
				attrs.InitialMessage = exchange.Message
			}
			if err := txn.Where(&conversation).Attrs(attrs).FirstOrCreate(&conversation).Error; err != nil {
				return fmt.Errorf("error creating conversation: %w", err)
			}
		}

		res := txn.Clauses(clause.OnConflict{DoNothing: true}).Create(exchange)
		if res.Error != nil {
			return fmt.Errorf("error creating exchange: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			slog.Info("exchange already recorded", "exchange_id", exchange.Id)
			return nil
		}

		if exchange.ConversationId.Valid && exchange.Kind == ExchangeStart {
			if err := txn.Model(&Conversation{}).
				Where("id = ? AND initial_message = ?", exchange.ConversationId.String, "").
				Updates(map[string]any{
					"initial_message": exchange.Message,
					"creation_time":   exchange.Timestamp,
				}).Error; err != nil {
				return fmt.Errorf("error updating conversation: %w", err)
			}
		}

		if exchange.ConversationId.Valid && exchange.Kind == ExchangeMessage {
			if err := txn.Model(&Conversation{Id: exchange.ConversationId.String}).Updates(map[string]any{
				"message_count": gorm.Expr("message_count + ?", 1),
				"last_activity": exchange.Timestamp,
			}).Error; err != nil {
				return fmt.Errorf("error updating conversation: %w", err)
			}
		}

		return nil
	})
}

var ErrConversationNotFound = errors.New("conversation not found")

func GetConversation(ctx context.Context, db *gorm.DB, id string) (Conversation, error) {
	var conversation Conversation
	if err := db.WithContext(ctx).Where("id = ?", id).First(&conversation).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return conversation, ErrConversationNotFound
		}
		return conversation, fmt.Errorf("error getting conversation: %w", err)
	}
	return conversation, nil
}

// ListExchanges returns a conversation's exchanges oldest first.
func ListExchanges(ctx context.Context, db *gorm.DB, conversationId string, limit, offset int) ([]Exchange, error) {
	var exchanges []Exchange
	if err := db.WithContext(ctx).
		Where("conversation_id = ?", conversationId).
		Order("timestamp ASC").
		Limit(limit).
		Offset(offset).
		Find(&exchanges).Error; err != nil {
		return nil, fmt.Errorf("error listing exchanges: %w", err)
	}
	return exchanges, nil
}

var ErrExchangeNotFound = errors.New("exchange not found")

func GetExchange(ctx context.Context, db *gorm.DB, conversationId string, id uuid.UUID) (Exchange, error) {
	var exchange Exchange
	if err := db.WithContext(ctx).
		Where("id = ? AND conversation_id = ?", id, conversationId).
		First(&exchange).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return exchange, ErrExchangeNotFound
		}
		return exchange, fmt.Errorf("error getting exchange: %w", err)
	}
	return exchange, nil
}
