package mappers

import (
	"github.com/reelqueue/reelqueue/internal/store/model"
)

type JobPage struct {
	Jobs       model.JobList
	NextCursor *string
	Total      int64
	Limit      int
}
