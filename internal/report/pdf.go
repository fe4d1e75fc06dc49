/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package report

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/jung-kurt/gofpdf"

	"librarydesk/internal/domain"
	"librarydesk/internal/version"
)

// Source supplies the listings rendered into the report. *store.Store satisfies it.
type Source interface {
	ListBooks(ctx context.Context) ([]domain.Book, error)
	ListMembers(ctx context.Context) ([]domain.Member, error)
	ListActiveLoans(ctx context.Context) ([]domain.ActiveLoan, error)
}

// Layout in points on an A4 page.
const (
	margin     = 40.0
	rowHeight  = 16.0
	headerSize = 16.0
	bodySize   = 10.0
)

// WriteInventoryPDF renders books, members and active loans into a single PDF at outPath.
// Rows are sorted so the same data always yields the same layout.
func WriteInventoryPDF(ctx context.Context, src Source, outPath string) error {
	books, err := src.ListBooks(ctx)
	if err != nil {
		return fmt.Errorf("load books: %w", err)
	}
	members, err := src.ListMembers(ctx)
	if err != nil {
		return fmt.Errorf("load members: %w", err)
	}
	loans, err := src.ListActiveLoans(ctx)
	if err != nil {
		return fmt.Errorf("load loans: %w", err)
	}
	sort.Slice(books, func(i, j int) bool { return books[i].Title < books[j].Title })
	sort.Slice(members, func(i, j int) bool { return members[i].ID < members[j].ID })
	sort.Slice(loans, func(i, j int) bool {
		if loans[i].MemberName != loans[j].MemberName {
			return loans[i].MemberName < loans[j].MemberName
		}
		return loans[i].Title < loans[j].Title
	})

	pdf := gofpdf.New("P", "pt", "A4", "")
	pdf.SetTitle("Library inventory", false)
	pdf.SetAuthor("LibraryDesk "+version.Version, false)
	pdf.SetMargins(margin, margin, margin)
	pdf.SetAutoPageBreak(true, margin)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", headerSize)
	pdf.CellFormat(0, headerSize*1.5, "Library inventory", "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", bodySize)
	pdf.CellFormat(0, rowHeight, "Generated "+time.Now().Format("2006-01-02 15:04"), "", 1, "L", false, 0, "")
	pdf.Ln(rowHeight / 2)

	bookRows := make([][]string, 0, len(books))
	for _, b := range books {
		bookRows = append(bookRows, []string{b.Title, fmt.Sprintf("%d/%d", b.AvailableCopies, b.TotalCopies), fmt.Sprint(b.OnLoan())})
	}
	table(pdf, fmt.Sprintf("Books (%d)", len(books)), []string{"Title", "Available", "On loan"}, []float64{300, 100, 100}, bookRows)

	memberRows := make([][]string, 0, len(members))
	for _, m := range members {
		memberRows = append(memberRows, []string{m.ID, m.Name})
	}
	table(pdf, fmt.Sprintf("Members (%d)", len(members)), []string{"Member ID", "Name"}, []float64{200, 300}, memberRows)

	loanRows := make([][]string, 0, len(loans))
	for _, l := range loans {
		loanRows = append(loanRows, []string{l.MemberName, l.Title})
	}
	table(pdf, fmt.Sprintf("Active loans (%d)", len(loans)), []string{"Member", "Title"}, []float64{200, 300}, loanRows)

	if err := pdf.Error(); err != nil {
		return fmt.Errorf("render pdf: %w", err)
	}
	if dir := filepath.Dir(outPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("ensure out dir: %w", err)
		}
	}
	if err := pdf.OutputFileAndClose(outPath); err != nil {
		return fmt.Errorf("write pdf: %w", err)
	}
	return nil
}

func table(pdf *gofpdf.Fpdf, title string, head []string, widths []float64, rows [][]string) {
	pdf.SetFont("Helvetica", "B", bodySize+2)
	pdf.CellFormat(0, rowHeight*1.4, title, "", 1, "L", false, 0, "")

	pdf.SetFont("Helvetica", "B", bodySize)
	pdf.SetFillColor(230, 230, 230)
	for i, h := range head {
		pdf.CellFormat(widths[i], rowHeight, h, "1", 0, "L", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Helvetica", "", bodySize)
	if len(rows) == 0 {
		pdf.CellFormat(sum(widths), rowHeight, "none", "1", 1, "C", false, 0, "")
	}
	for _, r := range rows {
		for i, c := range r {
			pdf.CellFormat(widths[i], rowHeight, c, "1", 0, "L", false, 0, "")
		}
		pdf.Ln(-1)
	}
	pdf.Ln(rowHeight)
}

func sum(xs []float64) float64 {
	var t float64
	for _, x := range xs {
		t += x
	}
	return t
}
