package activities

import "go.temporal.io/sdk/worker"

func Register(w worker.Worker, a *Activities) {
	w.RegisterActivity(a.LoadCorpusCSVActivity)
	w.RegisterActivity(a.ListMetadataFilesActivity)
	w.RegisterActivity(a.PutPaperActivity)
	w.RegisterActivity(a.ExtractTextActivity)
	w.RegisterActivity(a.ChunkTextActivity)
	w.RegisterActivity(a.EmbedChunksActivity)
	w.RegisterActivity(a.UpsertIndexActivity)
	w.RegisterActivity(a.UpdatePaperStatusActivity)
	w.RegisterActivity(a.DeletePaperActivity)
	w.RegisterActivity(a.ListStaleChunksActivity)
	w.RegisterActivity(a.ListPapersActivity)
	w.RegisterActivity(a.WriteIngestReportActivity)
}
