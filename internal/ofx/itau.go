package ofx

import (
	"fmt"
	"io"
	"strings"

	"github.com/jemadeira/extrato/internal/domain"
)

// itauParser handles Itaú OFX exports.
//
// Dialect notes:
//   - TRNTYPE is frequently just "OTHER"; the signed TRNAMT is the only
//     reliable direction signal for this variant.
//   - Amounts may use a comma decimal separator ("-1.234,56" or "-1234,56").
//   - DTPOSTED is YYYYMMDDHHMMSS with an optional "[-03:EST]" suffix.
type itauParser struct{}

func (p *itauParser) Bank() domain.Bank { return domain.BankItau }

func (p *itauParser) Parse(r io.Reader, filename string) ([]domain.RawRecord, error) {
	doc, err := scanDocument(r, filename)
	if err != nil {
		return nil, err
	}

	for _, blk := range doc.Txns {
		for _, tag := range []string{"DTPOSTED", "TRNAMT"} {
			if blk.Fields[tag] == "" {
				return nil, &domain.FormatError{
					Bank:   domain.BankItau,
					File:   filename,
					Reason: fmt.Sprintf("line %d: STMTTRN missing <%s>", blk.Line, tag),
				}
			}
		}
		// Direction comes from the amount sign, so an unsigned zero-padded
		// amount field is a grammar violation here.
		amt := strings.TrimSpace(blk.Fields["TRNAMT"])
		if amt == "" || amt == "-" || amt == "+" {
			return nil, &domain.FormatError{
				Bank:   domain.BankItau,
				File:   filename,
				Reason: fmt.Sprintf("line %d: malformed TRNAMT %q", blk.Line, blk.Fields["TRNAMT"]),
			}
		}
	}

	if len(doc.Txns) == 0 {
		return nil, &domain.EmptyInputError{File: filename}
	}

	return recordsFromDocument(doc, domain.BankItau), nil
}
