package corpus

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const sampleCSV = `id,title,authors,abstract,categories,submit_date,pdf_path
1706.03762,Attention Is All You Need,Ashish Vaswani; Noam Shazeer,"The dominant sequence transduction models are based on recurrence.","cs.CL,cs.LG",2017-06-12,pdfs/1706.03762.pdf
1810.04805,BERT,Jacob Devlin; Ming-Wei Chang,"We introduce a new language representation model.","cs.CL",2018-10-11,pdfs/1810.04805.pdf
badrow,,Nobody,"Missing the title.","cs.AI",2020-01-01,pdfs/bad.pdf
1706.03762,Attention Is All You Need,Ashish Vaswani; Noam Shazeer,"The dominant sequence transduction models are based on recurrence.","cs.CL,cs.LG",2017-06-12,pdfs/1706.03762.pdf
`

func TestLoadCSV(t *testing.T) {
	papers, report, err := LoadCSV(strings.NewReader(sampleCSV))
	require.NoError(t, err)

	require.Equal(t, 2, report.Loaded)
	require.Equal(t, 1, report.Skipped)
	require.Equal(t, 1, report.Duplicates)
	require.Len(t, report.Errors, 1)

	require.Len(t, papers, 2)
	first := papers[0]
	require.Equal(t, "1706.03762", first.PaperID)
	require.Equal(t, []string{"Ashish Vaswani", "Noam Shazeer"}, first.Authors)
	require.Equal(t, []string{"cs.CL", "cs.LG"}, first.Categories)
	require.Equal(t, 2017, first.SubmitDate.Year())
	require.Equal(t, "pdfs/1706.03762.pdf", first.SourcePath)
}

func TestLoadCSVRejectsMissingColumns(t *testing.T) {
	_, _, err := LoadCSV(strings.NewReader("id,authors\n1,foo\n"))
	require.Error(t, err)
}

func TestLoadCSVBadDateSkipsRow(t *testing.T) {
	csv := "id,title,authors,abstract,categories,submit_date,pdf_path\n" +
		"p1,T,A,\"abstract text\",cs.AI,not-a-date,x.pdf\n"
	papers, report, err := LoadCSV(strings.NewReader(csv))
	require.NoError(t, err)
	require.Empty(t, papers)
	require.Equal(t, 1, report.Skipped)
}
