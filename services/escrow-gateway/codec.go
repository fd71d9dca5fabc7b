package main

import (
	"encoding/hex"
	"errors"
	"math/big"
	"strings"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"trustescrow/core/events"
	"trustescrow/core/types"
	"trustescrow/native/arbitration"
	"trustescrow/native/chain"
	"trustescrow/native/common"
	"trustescrow/native/escrow"
	"trustescrow/native/reputation"
	"trustescrow/native/stream"
)

var errInvalidRequest = common.NewError(common.KindValidation, "InvalidRequest", "invalid request")

func invalidf(format string, args ...interface{}) error {
	return common.Wrapf(errInvalidRequest, format, args...)
}

func parseAddress(field, value string) ([20]byte, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return [20]byte{}, invalidf("%s is required", field)
	}
	if !ethcommon.IsHexAddress(trimmed) {
		return [20]byte{}, common.Wrapf(common.ErrInvalidAddress, "%s %q is not a hex address", field, trimmed)
	}
	return [20]byte(ethcommon.HexToAddress(trimmed)), nil
}

func parseID(field, value string) ([32]byte, error) {
	var id [32]byte
	trimmed := strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(value), "0x"), "0X")
	if trimmed == "" {
		return id, invalidf("%s is required", field)
	}
	raw, err := hex.DecodeString(trimmed)
	if err != nil || len(raw) != len(id) {
		return id, invalidf("%s must be 32 bytes of hex", field)
	}
	copy(id[:], raw)
	return id, nil
}

// parseOptionalID treats an empty value as the zero id, which asks the
// engines to derive one.
func parseOptionalID(field, value string) ([32]byte, error) {
	if strings.TrimSpace(value) == "" {
		return [32]byte{}, nil
	}
	return parseID(field, value)
}

func parseAmount(field, value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, invalidf("%s is required", field)
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, invalidf("%s must be a base-10 integer", field)
	}
	if amount.Sign() <= 0 {
		return nil, invalidf("%s must be positive", field)
	}
	return amount, nil
}

// parseConfidence accepts a decimal fraction such as "0.85". Values outside
// [0, 1] are passed through so the resolver reports them as malformed input.
func parseConfidence(value string) (float64, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return 0, invalidf("confidence is required")
	}
	d, err := decimal.NewFromString(trimmed)
	if err != nil {
		return 0, common.Wrapf(arbitration.ErrInvalidVerdict, "confidence %q", trimmed)
	}
	f, _ := d.Float64()
	return f, nil
}

func parseRatio(value *int) (uint8, error) {
	if value == nil {
		return 0, invalidf("ratio is required")
	}
	if *value < 0 || *value > 100 {
		return 0, escrow.ErrInvalidRatio
	}
	return uint8(*value), nil
}

func formatID(id [32]byte) string { return events.FormatID(id) }

func formatAddress(addr [20]byte) string { return events.FormatAddress(addr) }

func formatOptionalAddress(addr [20]byte) string {
	if addr == ([20]byte{}) {
		return ""
	}
	return formatAddress(addr)
}

type accountJSON struct {
	Address   string `json:"address"`
	Nonce     uint64 `json:"nonce"`
	Available string `json:"available"`
	Locked    string `json:"locked"`
}

func formatAccount(acc *types.Account) accountJSON {
	acc = acc.EnsureDefaults()
	return accountJSON{
		Address:   formatAddress(acc.Address),
		Nonce:     acc.Nonce,
		Available: events.FormatAmount(acc.Available),
		Locked:    events.FormatAmount(acc.Locked),
	}
}

type escrowJSON struct {
	ID            string   `json:"id"`
	Payer         string   `json:"payer"`
	Payee         string   `json:"payee"`
	Arbiter       string   `json:"arbiter"`
	Amount        string   `json:"amount"`
	Remaining     string   `json:"remaining"`
	PayeePaid     string   `json:"payeePaid"`
	PayerRefunded string   `json:"payerRefunded"`
	Deadline      int64    `json:"deadline"`
	CreatedAt     int64    `json:"createdAt"`
	Status        string   `json:"status"`
	Meta          string   `json:"meta,omitempty"`
	Delegates     []string `json:"delegates,omitempty"`
	DisputedBy    string   `json:"disputedBy,omitempty"`
	DisputeReason string   `json:"disputeReason,omitempty"`
	ResolvedRatio *uint8   `json:"resolvedRatio,omitempty"`
	SettledAt     int64    `json:"settledAt,omitempty"`
}

func formatEscrow(esc *escrow.Escrow) escrowJSON {
	out := escrowJSON{
		ID:            formatID(esc.ID),
		Payer:         formatAddress(esc.Payer),
		Payee:         formatAddress(esc.Payee),
		Arbiter:       formatAddress(esc.Arbiter),
		Amount:        events.FormatAmount(esc.Amount),
		Remaining:     events.FormatAmount(esc.Remaining()),
		PayeePaid:     events.FormatAmount(esc.PayeePaid),
		PayerRefunded: events.FormatAmount(esc.PayerRefunded),
		Deadline:      esc.Deadline,
		CreatedAt:     esc.CreatedAt,
		Status:        esc.Status.String(),
		DisputedBy:    formatOptionalAddress(esc.DisputedBy),
		DisputeReason: esc.DisputeReason,
		SettledAt:     esc.SettledAt,
	}
	if esc.MetaHash != ([32]byte{}) {
		out.Meta = formatID(esc.MetaHash)
	}
	for _, d := range esc.Delegates {
		out.Delegates = append(out.Delegates, formatAddress(d))
	}
	if esc.Status.Terminal() && esc.DisputedBy != ([20]byte{}) {
		ratio := esc.ResolvedRatio
		out.ResolvedRatio = &ratio
	}
	return out
}

type streamJSON struct {
	ID            string `json:"id"`
	Sender        string `json:"sender"`
	Receiver      string `json:"receiver"`
	RatePerSecond string `json:"ratePerSecond"`
	Budget        string `json:"budget"`
	StartTime     int64  `json:"startTime"`
	Withdrawn     string `json:"withdrawn"`
	Status        string `json:"status"`
	CancelledAt   int64  `json:"cancelledAt,omitempty"`
	CompletedAt   int64  `json:"completedAt,omitempty"`
}

func formatStream(st *stream.Stream) streamJSON {
	return streamJSON{
		ID:            formatID(st.ID),
		Sender:        formatAddress(st.Sender),
		Receiver:      formatAddress(st.Receiver),
		RatePerSecond: stream.FormatRate(st.RatePerSecond),
		Budget:        events.FormatAmount(st.Budget),
		StartTime:     st.StartTime,
		Withdrawn:     events.FormatAmount(st.Withdrawn),
		Status:        st.Status.String(),
		CancelledAt:   st.CancelledAt,
		CompletedAt:   st.CompletedAt,
	}
}

type snapshotJSON struct {
	Streamed     string `json:"streamed"`
	Withdrawable string `json:"withdrawable"`
	Remaining    string `json:"remaining"`
	Elapsed      int64  `json:"elapsed"`
	Status       string `json:"status"`
	At           int64  `json:"at"`
}

func formatSnapshot(snap *stream.Snapshot) snapshotJSON {
	return snapshotJSON{
		Streamed:     events.FormatAmount(snap.Streamed),
		Withdrawable: events.FormatAmount(snap.Withdrawable),
		Remaining:    events.FormatAmount(snap.Remaining),
		Elapsed:      snap.Elapsed,
		Status:       snap.Status.String(),
		At:           snap.At,
	}
}

type edgeJSON struct {
	Parent       string `json:"parent"`
	Child        string `json:"child"`
	Type         string `json:"type"`
	ThresholdBps uint32 `json:"thresholdBps,omitempty"`
	CreatedAt    int64  `json:"createdAt"`
}

func formatEdge(edge chain.Edge) edgeJSON {
	return edgeJSON{
		Parent:       formatID(edge.Parent),
		Child:        formatID(edge.Child),
		Type:         edge.Type.String(),
		ThresholdBps: edge.ThresholdBps,
		CreatedAt:    edge.CreatedAt,
	}
}

type chainJSON struct {
	ID          string     `json:"id"`
	Parents     []edgeJSON `json:"parents"`
	Children    []string   `json:"children"`
	Ancestors   []string   `json:"ancestors"`
	Descendants []string   `json:"descendants"`
}

func formatIDs(ids [][32]byte) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, formatID(id))
	}
	return out
}

type profileJSON struct {
	Address            string   `json:"address"`
	Name               string   `json:"name,omitempty"`
	Score              uint8    `json:"score"`
	Tier               string   `json:"tier"`
	TotalEscrows       uint64   `json:"totalEscrows"`
	SuccessfulReleases uint64   `json:"successfulReleases"`
	Refunds            uint64   `json:"refunds"`
	DisputesWon        uint64   `json:"disputesWon"`
	DisputesLost       uint64   `json:"disputesLost"`
	TotalVolume        string   `json:"totalVolume"`
	Badges             []string `json:"badges"`
	RegisteredAt       int64    `json:"registeredAt,omitempty"`
	UpdatedAt          int64    `json:"updatedAt"`
}

func formatProfile(p *reputation.Profile) profileJSON {
	badges := p.Badges
	if badges == nil {
		badges = []string{}
	}
	return profileJSON{
		Address:            formatAddress(p.Address),
		Name:               p.Name,
		Score:              p.Score,
		Tier:               string(p.Tier()),
		TotalEscrows:       p.Stats.TotalEscrows,
		SuccessfulReleases: p.Stats.SuccessfulReleases,
		Refunds:            p.Stats.Refunds,
		DisputesWon:        p.Stats.DisputesWon,
		DisputesLost:       p.Stats.DisputesLost,
		TotalVolume:        events.FormatAmount(p.Stats.TotalVolume),
		Badges:             badges,
		RegisteredAt:       p.RegisteredAt,
		UpdatedAt:          p.UpdatedAt,
	}
}

type evidenceJSON struct {
	Submitter   string `json:"submitter"`
	Digest      string `json:"digest"`
	URI         string `json:"uri,omitempty"`
	SubmittedAt int64  `json:"submittedAt"`
}

type verdictJSON struct {
	Decision   string `json:"decision"`
	Confidence string `json:"confidence"`
	Reasoning  string `json:"reasoning,omitempty"`
	SplitRatio uint8  `json:"splitRatio"`
	IssuedAt   int64  `json:"issuedAt"`
}

type tallyJSON struct {
	Release uint64 `json:"release"`
	Refund  uint64 `json:"refund"`
	Split   uint64 `json:"split"`
}

type timelineJSON struct {
	Status string `json:"status"`
	At     int64  `json:"at"`
	Note   string `json:"note,omitempty"`
}

type caseJSON struct {
	EscrowID           string         `json:"escrowId"`
	Claimant           string         `json:"claimant"`
	Respondent         string         `json:"respondent"`
	Status             string         `json:"status"`
	ClaimantEvidence   []evidenceJSON `json:"claimantEvidence"`
	RespondentEvidence []evidenceJSON `json:"respondentEvidence"`
	Verdict            *verdictJSON   `json:"verdict,omitempty"`
	Tally              tallyJSON      `json:"tally"`
	FinalRatio         *uint8         `json:"finalRatio,omitempty"`
	Resolution         string         `json:"resolution,omitempty"`
	OpenedAt           int64          `json:"openedAt"`
	ResolvedAt         int64          `json:"resolvedAt,omitempty"`
	Timeline           []timelineJSON `json:"timeline"`
}

func formatEvidence(list []arbitration.Evidence) []evidenceJSON {
	out := make([]evidenceJSON, 0, len(list))
	for _, ev := range list {
		out = append(out, evidenceJSON{
			Submitter:   formatAddress(ev.Submitter),
			Digest:      formatID(ev.Digest),
			URI:         ev.URI,
			SubmittedAt: ev.SubmittedAt,
		})
	}
	return out
}

func formatCase(c *arbitration.Case) caseJSON {
	out := caseJSON{
		EscrowID:           formatID(c.EscrowID),
		Claimant:           formatAddress(c.Claimant),
		Respondent:         formatAddress(c.Respondent),
		Status:             c.Status.String(),
		ClaimantEvidence:   formatEvidence(c.ClaimantEvidence),
		RespondentEvidence: formatEvidence(c.RespondentEvidence),
		Tally:              tallyJSON{Release: c.Tally.Release, Refund: c.Tally.Refund, Split: c.Tally.Split},
		Resolution:         string(c.Resolution),
		OpenedAt:           c.OpenedAt,
		ResolvedAt:         c.ResolvedAt,
	}
	if c.Verdict != nil {
		out.Verdict = &verdictJSON{
			Decision:   c.Verdict.Decision.String(),
			Confidence: decimal.New(int64(c.Verdict.ConfidenceBps), -4).String(),
			Reasoning:  c.Verdict.Reasoning,
			SplitRatio: c.Verdict.SplitRatio,
			IssuedAt:   c.Verdict.IssuedAt,
		}
	}
	if c.Status == arbitration.StatusResolved {
		ratio := c.FinalRatio
		out.FinalRatio = &ratio
	}
	for _, entry := range c.Timeline {
		out.Timeline = append(out.Timeline, timelineJSON{Status: entry.Status.String(), At: entry.At, Note: entry.Note})
	}
	return out
}

// describe hides the text of foreign errors, which may carry storage
// details.
func describe(err error) string {
	var coded *common.Error
	if errors.As(err, &coded) {
		return err.Error()
	}
	return "internal error"
}
