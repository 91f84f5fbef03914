package frame

import (
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// ReadXLSX loads a long-format frame from the first sheet of an XLSX file.
// The sheet follows the same header contract as ReadCSV.
func ReadXLSX(path string) (*Frame, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "frame: open xlsx")
	}
	if len(f.Sheets) == 0 {
		return nil, eris.New("frame: xlsx file has no sheets")
	}

	sheet := f.Sheets[0]
	records := make([][]string, 0, len(sheet.Rows))
	for _, row := range sheet.Rows {
		cells := make([]string, len(row.Cells))
		for j, cell := range row.Cells {
			cells[j] = cell.String()
		}
		records = append(records, cells)
	}
	return FromRecords(records)
}
