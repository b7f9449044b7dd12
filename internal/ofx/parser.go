// Package ofx decodes OFX bank statement exports into raw transaction
// records. Each supported bank ships a slightly different dialect of the
// format, so parsing is split into per-bank variants behind a common
// interface; the variant is selected by a declared enum, never by runtime
// type sniffing of the caller's side.
package ofx

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/jemadeira/extrato/internal/domain"
)

// Parser decodes one bank's raw statement file into RawRecords.
type Parser interface {
	// Parse reads a whole OFX document and returns its transaction records
	// in file order. The input is never mutated. It fails with
	// *domain.FormatError when the document does not match the bank's
	// structural grammar and *domain.EmptyInputError when no transactions
	// are present.
	Parse(r io.Reader, filename string) ([]domain.RawRecord, error)
	// Bank returns the variant this parser handles.
	Bank() domain.Bank
}

// New returns the parser for the given bank variant.
func New(bank domain.Bank) (Parser, error) {
	switch bank {
	case domain.BankBrasil:
		return &brasilParser{}, nil
	case domain.BankItau:
		return &itauParser{}, nil
	default:
		return nil, fmt.Errorf("ofx.New: unsupported bank variant %q", bank)
	}
}

// autoDetect identifies the bank variant from OFX signon metadata
// (<ORG> organization name or <BANKID> routing code).
func autoDetect(doc *document) (domain.Bank, error) {
	org := strings.ToUpper(doc.Meta["ORG"])
	switch {
	case strings.Contains(org, "BANCO DO BRASIL"), doc.Meta["BANKID"] == "001":
		return domain.BankBrasil, nil
	case strings.Contains(org, "ITAU"), strings.Contains(org, "ITAÚ"), doc.Meta["BANKID"] == "341":
		return domain.BankItau, nil
	}
	return "", fmt.Errorf("ofx.DetectBank: unrecognized institution %q", doc.Meta["ORG"])
}

// DetectBank parses just enough of the document to identify its variant.
func DetectBank(r io.Reader, filename string) (domain.Bank, error) {
	doc, err := scanDocument(r, filename)
	if err != nil {
		return "", err
	}
	return autoDetect(doc)
}

// document is the structural decomposition shared by all variants: signon and
// account metadata plus the raw tag/value pairs of each STMTTRN block.
type document struct {
	File string
	Meta map[string]string // ORG, BANKID, BRANCHID, ACCTID, ACCTTYPE, DTSTART, DTEND, BALAMT
	Txns []txnBlock
}

type txnBlock struct {
	Line   int
	Fields map[string]string
}

// metaTags are the leaf tags outside STMTTRN blocks worth keeping.
var metaTags = map[string]bool{
	"ORG": true, "FID": true, "BANKID": true, "BRANCHID": true,
	"ACCTID": true, "ACCTTYPE": true, "DTSTART": true, "DTEND": true,
	"BALAMT": true, "CURDEF": true,
}

// scanDocument tokenizes an OFX document. OFX statements in the wild are
// SGML-flavored: leaf tags usually have no closing tag (<TRNAMT>-10.00) but
// XML-style closers (<TRNAMT>-10.00</TRNAMT>) appear too; both are accepted.
func scanDocument(r io.Reader, filename string) (*document, error) {
	doc := &document{File: filename, Meta: map[string]string{}}

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	sawOFX := false
	sawTranList := false
	var cur *txnBlock
	lineNo := 0

	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}

		// OFX header block ("OFXHEADER:100", "DATA:OFXSGML", ...) precedes
		// the tag soup; it carries nothing we need beyond being tolerated.
		if !strings.HasPrefix(line, "<") {
			if !sawOFX && strings.Contains(line, ":") {
				continue
			}
			// Continuation of a multi-line MEMO inside a block.
			if cur != nil {
				if memo, ok := cur.Fields["MEMO"]; ok {
					cur.Fields["MEMO"] = memo + " " + line
					continue
				}
			}
			return nil, &domain.FormatError{File: filename, Reason: fmt.Sprintf("line %d: stray content %q", lineNo, truncate(line, 40))}
		}

		for _, tok := range splitTags(line) {
			name, value := tok.name, tok.value
			switch name {
			case "OFX":
				sawOFX = true
			case "BANKTRANLIST":
				sawTranList = true
			case "STMTTRN":
				if cur != nil {
					return nil, &domain.FormatError{File: filename, Reason: fmt.Sprintf("line %d: nested STMTTRN", lineNo)}
				}
				cur = &txnBlock{Line: lineNo, Fields: map[string]string{}}
			case "/STMTTRN":
				if cur == nil {
					return nil, &domain.FormatError{File: filename, Reason: fmt.Sprintf("line %d: /STMTTRN without open block", lineNo)}
				}
				doc.Txns = append(doc.Txns, *cur)
				cur = nil
			default:
				if strings.HasPrefix(name, "/") {
					continue
				}
				if cur != nil {
					cur.Fields[name] = value
				} else if metaTags[name] && value != "" {
					doc.Meta[name] = value
				}
			}
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scanDocument: reading %s: %w", filename, err)
	}

	if !sawOFX {
		return nil, &domain.FormatError{File: filename, Reason: "missing <OFX> root element"}
	}
	if !sawTranList {
		return nil, &domain.FormatError{File: filename, Reason: "missing <BANKTRANLIST> section"}
	}
	if cur != nil {
		return nil, &domain.FormatError{File: filename, Reason: "unterminated STMTTRN block"}
	}

	return doc, nil
}

type tagToken struct {
	name  string
	value string
}

// splitTags breaks a line into its tag tokens. A line may carry several tags
// ("<FI><ORG>Banco</ORG></FI>"); a tag's value runs until the next '<'.
func splitTags(line string) []tagToken {
	var toks []tagToken
	for {
		open := strings.Index(line, "<")
		if open < 0 {
			break
		}
		close := strings.Index(line[open:], ">")
		if close < 0 {
			break
		}
		name := strings.ToUpper(strings.TrimSpace(line[open+1 : open+close]))
		rest := line[open+close+1:]

		value := rest
		if next := strings.Index(rest, "<"); next >= 0 {
			value = rest[:next]
		}
		toks = append(toks, tagToken{name: name, value: strings.TrimSpace(value)})
		line = rest
	}
	return toks
}

// recordsFromDocument materializes RawRecords: each transaction block's tags
// plus the document-level account metadata, so downstream stages see a
// self-contained record.
func recordsFromDocument(doc *document, bank domain.Bank) []domain.RawRecord {
	records := make([]domain.RawRecord, 0, len(doc.Txns))
	for _, blk := range doc.Txns {
		fields := make(map[string]string, len(blk.Fields)+len(doc.Meta))
		for k, v := range doc.Meta {
			fields[k] = v
		}
		for k, v := range blk.Fields {
			fields[k] = v
		}
		records = append(records, domain.RawRecord{
			Bank:       bank,
			SourceFile: doc.File,
			Line:       blk.Line,
			Fields:     fields,
		})
	}
	return records
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
