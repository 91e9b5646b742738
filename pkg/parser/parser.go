// Package parser turns raw inbox messages into transactions using regular expressions.
package parser

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ArionMiles/smsledger/pkg/api"
)

const (
	// SnippetLimit is the maximum length of a snippet, in characters.
	SnippetLimit = 120
	// ellipsis is appended to truncated snippets.
	ellipsis = "..."
)

// space is the Unicode whitespace set, including no-break spaces. RE2's \s is ASCII only.
const space = `\s\v\x{1c}-\x{1f}\x{85}\p{Z}`

var (
	utrRegex = regexp.MustCompile(`(?i)\bUTR[:` + space + `\-]*([A-Za-z0-9]{6,30})`)
	// amountRegex matches a currency marker followed by the amount.
	amountRegex = regexp.MustCompile(`(?i)(?:INR|Rs\.?|Rs|₹)[` + space + `]?([0-9.,]+(?:\.\d{1,2})?)`)
	// altAmountRegex matches the amount followed by a currency marker.
	altAmountRegex = regexp.MustCompile(`(?i)([0-9.,]+)[` + space + `]?(?:INR|Rs\.?|Rs|₹)\b`)

	idNamespace = uuid.MustParse("6f1c2a1e-8d3b-4b6e-9a57-2f0e4c1d9b83")
)

// Parser extracts transactions from message bodies.
// It holds no state besides the time zone used for dates.
type Parser struct {
	loc *time.Location
}

// New creates a parser that formats dates in loc. A nil loc means time.Local.
func New(loc *time.Location) *Parser {
	if loc == nil {
		loc = time.Local
	}
	return &Parser{loc: loc}
}

// Parse builds a transaction from a single message.
// It never fails: fields that cannot be extracted are left absent.
func (p *Parser) Parse(sender, body string, timestampMillis int64) *api.Transaction {
	return &api.Transaction{
		ID:              messageID(sender, body, timestampMillis),
		Title:           "From: " + sender,
		SubtitleDate:    p.FormatTimestamp(timestampMillis),
		Amount:          ExtractAmount(body),
		UTR:             ExtractUTR(body),
		Snippet:         Snippet(body),
		Sender:          sender,
		TimestampMillis: timestampMillis,
	}
}

// ParseRecord is Parse for a MessageRecord.
func (p *Parser) ParseRecord(rec api.MessageRecord) *api.Transaction {
	return p.Parse(rec.Sender, rec.Body, rec.TimestampMillis)
}

// ParseAll parses records in order.
func (p *Parser) ParseAll(records []api.MessageRecord) []*api.Transaction {
	transactions := make([]*api.Transaction, 0, len(records))
	for _, rec := range records {
		transactions = append(transactions, p.ParseRecord(rec))
	}
	return transactions
}

// FormatTimestamp renders epoch milliseconds as local "YYYY-MM-DD HH:MM:SS".
// Values outside the four-digit year range fall back to the raw number.
func (p *Parser) FormatTimestamp(timestampMillis int64) string {
	t := time.UnixMilli(timestampMillis).In(p.loc)
	if t.Year() < 1 || t.Year() > 9999 {
		return strconv.FormatInt(timestampMillis, 10)
	}
	return t.Format(time.DateTime)
}

// ExtractUTR returns the first UTR reference in body, or nil.
func ExtractUTR(body string) *string {
	return firstGroup(utrRegex, body)
}

// ExtractAmount returns the first amount in body, or nil.
// Prefixed currency markers take precedence over suffixed ones.
// The match is returned verbatim, separators included.
func ExtractAmount(body string) *string {
	if amount := firstGroup(amountRegex, body); amount != nil {
		return amount
	}
	return firstGroup(altAmountRegex, body)
}

// Snippet collapses newlines, trims the body and truncates it to SnippetLimit characters.
func Snippet(body string) string {
	snippet := strings.TrimSpace(strings.ReplaceAll(body, "\n", " "))

	runes := []rune(snippet)
	if len(runes) > SnippetLimit {
		return string(runes[:SnippetLimit-len(ellipsis)]) + ellipsis
	}
	return snippet
}

func firstGroup(re *regexp.Regexp, body string) *string {
	matches := re.FindStringSubmatch(body)
	if len(matches) < 2 || matches[1] == "" {
		return nil
	}
	value := matches[1]
	return &value
}

func messageID(sender, body string, timestampMillis int64) uuid.UUID {
	key := sender + "\x00" + strconv.FormatInt(timestampMillis, 10) + "\x00" + body
	return uuid.NewSHA1(idNamespace, []byte(key))
}
