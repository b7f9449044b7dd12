package ofx

import (
	"fmt"
	"io"

	"github.com/jemadeira/extrato/internal/domain"
)

// brasilParser handles Banco do Brasil OFX exports.
//
// Dialect notes:
//   - Direction is declared in TRNTYPE (CREDIT / DEBIT / DEP); TRNAMT is the
//     authoritative magnitude but its sign is not trusted on its own.
//   - Amounts use a dot decimal separator.
//   - DTPOSTED is YYYYMMDD, optionally followed by a time and a timezone
//     suffix like "[-3:BRT]".
type brasilParser struct{}

func (p *brasilParser) Bank() domain.Bank { return domain.BankBrasil }

func (p *brasilParser) Parse(r io.Reader, filename string) ([]domain.RawRecord, error) {
	doc, err := scanDocument(r, filename)
	if err != nil {
		return nil, err
	}

	// Structural grammar check for this variant: every transaction block must
	// declare its direction and carry the mandatory leaf tags.
	for _, blk := range doc.Txns {
		for _, tag := range []string{"TRNTYPE", "DTPOSTED", "TRNAMT"} {
			if blk.Fields[tag] == "" {
				return nil, &domain.FormatError{
					Bank:   domain.BankBrasil,
					File:   filename,
					Reason: fmt.Sprintf("line %d: STMTTRN missing <%s>", blk.Line, tag),
				}
			}
		}
		switch blk.Fields["TRNTYPE"] {
		case "CREDIT", "DEBIT", "DEP", "XFER", "OTHER":
		default:
			return nil, &domain.FormatError{
				Bank:   domain.BankBrasil,
				File:   filename,
				Reason: fmt.Sprintf("line %d: unknown TRNTYPE %q", blk.Line, blk.Fields["TRNTYPE"]),
			}
		}
	}

	if len(doc.Txns) == 0 {
		return nil, &domain.EmptyInputError{File: filename}
	}

	return recordsFromDocument(doc, domain.BankBrasil), nil
}
