/*
dto.go - Data Transfer Objects for API requests and responses

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

Amounts travel as strings so no precision is lost to JSON numbers.
*/
package api

import (
	"time"

	"github.com/warp/payments-engine/payments"
)

// TransactionRequest mirrors one input record.
type TransactionRequest struct {
	Type   string `json:"type"`
	Client uint16 `json:"client"`
	Tx     uint32 `json:"tx"`
	Amount string `json:"amount,omitempty"`
}

type ClientDTO struct {
	Client    uint16 `json:"client"`
	Available string `json:"available"`
	Held      string `json:"held"`
	Total     string `json:"total"`
	Locked    bool   `json:"locked"`
}

// LedgerEntryDTO is a recorded deposit or withdrawal.
type LedgerEntryDTO struct {
	Tx            uint32 `json:"tx"`
	Client        uint16 `json:"client"`
	Type          string `json:"type"`
	Amount        string `json:"amount"`
	DisputeStatus string `json:"dispute_status,omitempty"`
}

type RejectionDTO struct {
	Line   int    `json:"line,omitempty"`
	Type   string `json:"type,omitempty"`
	Client uint16 `json:"client"`
	Tx     uint32 `json:"tx"`
	Code   string `json:"code"`
	Reason string `json:"reason"`
}

type BatchResponse struct {
	Applied    int            `json:"applied"`
	Rejections []RejectionDTO `json:"rejections"`
}

type RunDTO struct {
	ID         string         `json:"id"`
	CreatedAt  time.Time      `json:"created_at"`
	LockPolicy string         `json:"lock_policy"`
	Applied    int            `json:"applied"`
	Clients    []ClientDTO    `json:"clients"`
	Rejections []RejectionDTO `json:"rejections"`
}

type RunSummaryDTO struct {
	ID         string    `json:"id"`
	CreatedAt  time.Time `json:"created_at"`
	LockPolicy string    `json:"lock_policy"`
	Applied    int       `json:"applied"`
	Clients    int       `json:"clients"`
	Rejections int       `json:"rejections"`
}

// ErrorResponse is returned with any non-2xx status.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toClientDTO(c payments.ClientSnapshot) ClientDTO {
	return ClientDTO{
		Client:    uint16(c.Client),
		Available: c.Available.String(),
		Held:      c.Held.String(),
		Total:     c.Total.String(),
		Locked:    c.Locked,
	}
}

func toClientDTOs(cs []payments.ClientSnapshot) []ClientDTO {
	out := make([]ClientDTO, 0, len(cs))
	for _, c := range cs {
		out = append(out, toClientDTO(c))
	}
	return out
}

func toLedgerEntryDTO(tx payments.Transaction) LedgerEntryDTO {
	dto := LedgerEntryDTO{
		Tx:     uint32(payments.TxID(tx)),
		Client: uint16(tx.Client()),
		Type:   string(tx.Kind()),
	}
	switch t := tx.(type) {
	case payments.Deposit:
		dto.Amount = t.Amount.String()
		dto.DisputeStatus = t.DisputeStatus.String()
	case payments.Withdraw:
		dto.Amount = t.Amount.String()
	}
	return dto
}

func toRejectionDTOs(rs []payments.Rejection) []RejectionDTO {
	out := make([]RejectionDTO, 0, len(rs))
	for _, r := range rs {
		out = append(out, RejectionDTO{
			Line:   r.Line,
			Type:   string(r.Kind),
			Client: uint16(r.Client),
			Tx:     uint32(r.Tx),
			Code:   r.Code,
			Reason: r.Reason,
		})
	}
	return out
}

func toRunDTO(r payments.Run) RunDTO {
	return RunDTO{
		ID:         r.ID,
		CreatedAt:  r.CreatedAt,
		LockPolicy: string(r.LockPolicy),
		Applied:    r.Applied,
		Clients:    toClientDTOs(r.Clients),
		Rejections: toRejectionDTOs(r.Rejections),
	}
}

func toRunSummaryDTO(s payments.RunSummary) RunSummaryDTO {
	return RunSummaryDTO{
		ID:         s.ID,
		CreatedAt:  s.CreatedAt,
		LockPolicy: string(s.LockPolicy),
		Applied:    s.Applied,
		Clients:    s.Clients,
		Rejections: s.Rejections,
	}
}
