package domain

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// InstructionType tags the payload carried by an Instruction.
type InstructionType string

const (
	InstructionShill   InstructionType = "shill"
	InstructionTrade   InstructionType = "trade"
	InstructionVote    InstructionType = "vote"
	InstructionComment InstructionType = "comment"
	InstructionNone    InstructionType = "none"
)

// ErrUnsupportedInstruction is returned for payloads the trading core does not act on.
var ErrUnsupportedInstruction = errors.New("unsupported instruction")

// Payload is implemented by every instruction payload variant.
type Payload interface {
	instructionType() InstructionType
}

type ShillPayload struct {
	Token   string `json:"token"`
	Message string `json:"message"`
}

type TradePayload struct {
	Signal TradeSignal `json:"signal"`
}

type VotePayload struct {
	ProposalID string `json:"proposal_id"`
	Support    bool   `json:"support"`
}

type CommentPayload struct {
	PostID string `json:"post_id"`
	Text   string `json:"text"`
}

func (ShillPayload) instructionType() InstructionType   { return InstructionShill }
func (TradePayload) instructionType() InstructionType   { return InstructionTrade }
func (VotePayload) instructionType() InstructionType    { return InstructionVote }
func (CommentPayload) instructionType() InstructionType { return InstructionComment }

// Instruction is a unit of work for an agent wallet. A nil Payload is InstructionNone.
type Instruction struct {
	Wallet  string  `json:"wallet"`
	Payload Payload `json:"payload"`
}

// Type returns the tag of the carried payload.
func (i Instruction) Type() InstructionType {
	if i.Payload == nil {
		return InstructionNone
	}
	return i.Payload.instructionType()
}

// NewTradeInstruction wraps a signal for a wallet.
func NewTradeInstruction(wallet string, signal TradeSignal) Instruction {
	return Instruction{Wallet: wallet, Payload: TradePayload{Signal: signal}}
}

// AmountOrDefault returns the suggested amount of a signal or def.
func AmountOrDefault(s TradeSignal, def decimal.Decimal) decimal.Decimal {
	if s.SuggestedAmount != nil && s.SuggestedAmount.IsPositive() {
		return *s.SuggestedAmount
	}
	return def
}

// Unsupported wraps ErrUnsupportedInstruction with the instruction type.
func Unsupported(t InstructionType) error {
	return fmt.Errorf("%w: %s", ErrUnsupportedInstruction, t)
}
