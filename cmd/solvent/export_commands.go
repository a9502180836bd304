package main

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
	"github.com/urfave/cli/v2"

	"github.com/brojonat/solvent/service/rent"
	"github.com/brojonat/solvent/service/solana"
)

const (
	formatJSON = "json"
	formatCSV  = "csv"
)

var csvHeader = []string{
	"Address", "Type", "Owner", "CloseAuthority", "Mint",
	"RentSOL", "TokenBalance", "Classification", "Status", "CreatedAt",
}

func exportCommand() *cli.Command {
	return &cli.Command{
		Name:      "export",
		Usage:     "Export the sponsored accounts of a fee payer to a JSON or CSV file",
		ArgsUsage: "ADDRESS",
		Flags: []cli.Flag{
			limitFlag(),
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Value:   formatJSON,
				Usage:   "Output format (json, csv)",
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Value:   "solvent-export",
				Usage:   "Output file prefix; a timestamp and extension are appended",
			},
			&cli.StringFlag{
				Name:  "filter",
				Value: string(rent.FilterAll),
				Usage: "Which accounts to export (all, reclaimable, closeable)",
			},
			&cli.StringFlag{
				Name:  "jq",
				Usage: "jq expression evaluated per account; accounts where it is false or null are dropped",
			},
		},
		Action: func(c *cli.Context) error {
			format := c.String("format")
			if format != formatJSON && format != formatCSV {
				return fmt.Errorf("invalid format %q: must be json or csv", format)
			}
			f, err := rent.ParseFilter(c.String("filter"))
			if err != nil {
				return err
			}
			code, err := compileJQ(c.String("jq"))
			if err != nil {
				return err
			}

			report, _, err := analyze(c, c.Int("limit"))
			if err != nil {
				return err
			}
			accounts, err := filterJQ(code, rent.FilterAccounts(report.Accounts, f))
			if err != nil {
				return err
			}

			exportedAt := time.Now().UTC()
			path := exportFilename(c.String("output"), format, exportedAt)
			file, err := os.Create(path)
			if err != nil {
				return fmt.Errorf("failed to create %s: %w", path, err)
			}
			defer file.Close()

			if format == formatCSV {
				err = writeCSV(file, accounts)
			} else {
				err = outputJSON(file, newExportDocument(report, accounts, exportedAt))
			}
			if err != nil {
				return fmt.Errorf("failed to write %s: %w", path, err)
			}
			if err := file.Close(); err != nil {
				return fmt.Errorf("failed to write %s: %w", path, err)
			}

			if c.Bool("json") {
				return outputJSON(c.App.Writer, map[string]interface{}{
					"file":     path,
					"format":   format,
					"accounts": len(accounts),
				})
			}
			fmt.Fprintf(c.App.Writer, "✓ Exported %d account(s) to %s\n", len(accounts), path)
			return nil
		},
	}
}

// exportFilename builds PREFIX-YYYY-MM-DDTHH-MM-SS.FORMAT.
func exportFilename(prefix, format string, at time.Time) string {
	return fmt.Sprintf("%s-%s.%s", prefix, at.UTC().Format("2006-01-02T15-04-05"), format)
}

type exportDocument struct {
	FeePayer   string          `json:"fee_payer"`
	Network    solana.Network  `json:"network"`
	ExportedAt time.Time       `json:"exported_at"`
	Stats      rent.RentStats  `json:"stats"`
	Accounts   []exportAccount `json:"accounts"`
}

type exportAccount struct {
	Address        string              `json:"address"`
	Type           rent.AccountType    `json:"type"`
	Owner          string              `json:"owner"`
	CloseAuthority string              `json:"close_authority,omitempty"`
	Mint           string              `json:"mint,omitempty"`
	RentSOL        decimal.Decimal     `json:"rent_sol"`
	TokenBalance   uint64              `json:"token_balance"`
	Classification rent.Classification `json:"classification"`
	Status         rent.Status         `json:"status"`
	CreatedAt      *time.Time          `json:"created_at,omitempty"`
}

func newExportDocument(report *rent.Report, accounts []rent.SponsoredAccount, at time.Time) exportDocument {
	doc := exportDocument{
		FeePayer:   report.FeePayer.String(),
		Network:    report.Network,
		ExportedAt: at,
		Stats:      report.Stats,
		Accounts:   make([]exportAccount, 0, len(accounts)),
	}
	for _, acct := range accounts {
		doc.Accounts = append(doc.Accounts, toExportAccount(acct))
	}
	return doc
}

func toExportAccount(acct rent.SponsoredAccount) exportAccount {
	out := exportAccount{
		Address:        acct.Address.String(),
		Type:           acct.Type,
		Owner:          acct.Owner.String(),
		CloseAuthority: optionalKey(acct.CloseAuthority),
		Mint:           optionalKey(acct.Mint),
		RentSOL:        rent.LamportsToSOL(acct.RentLamports),
		TokenBalance:   acct.TokenBalance,
		Classification: acct.Classification,
		Status:         acct.Status,
	}
	if !acct.CreatedAt.IsZero() {
		created := acct.CreatedAt.UTC()
		out.CreatedAt = &created
	}
	return out
}

func writeCSV(w io.Writer, accounts []rent.SponsoredAccount) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, acct := range accounts {
		row := toExportAccount(acct)
		created := ""
		if row.CreatedAt != nil {
			created = row.CreatedAt.Format(time.RFC3339)
		}
		if err := cw.Write([]string{
			row.Address,
			string(row.Type),
			row.Owner,
			row.CloseAuthority,
			row.Mint,
			row.RentSOL.String(),
			strconv.FormatUint(row.TokenBalance, 10),
			string(row.Classification),
			string(row.Status),
			created,
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func optionalKey(pk *solanago.PublicKey) string {
	if pk == nil {
		return ""
	}
	return pk.String()
}
