package agents

import (
	"context"
	"fmt"

	"github.com/vinayprograms/coder/internal/anomaly"
	"github.com/vinayprograms/coder/internal/conversation"
	"github.com/vinayprograms/coder/internal/files"
	"github.com/vinayprograms/coder/internal/graph"
	"github.com/vinayprograms/coder/internal/tools"
)

// ResearcherFinal is the researcher's terminal tool.
const ResearcherFinal = "final_response_researcher"

// Research is what the researcher found.
type Research struct {
	Files      *files.Set // files to work on and reference files, none modified
	WorkOn     []string
	References []string
	Images     []string
}

// Researcher finds the files a task touches. It never edits.
type Researcher struct {
	Env
	Model  graph.Model
	Limit  int
	Silent bool // accept the selection without asking
}

func researcherTool() tools.FinalTool {
	return tools.FinalTool{
		Name: ResearcherFinal,
		Description: "That tool outputs list of files programmer will need to change and paths to graphical patterns if some. " +
			"Use that tool only when you 100% sure you found all the files programmer will need to modify. " +
			"Provide only existing files, do not provide files to be implemented.",
		Parameters: objectSchema(map[string]interface{}{
			"files_to_work_on": arraySchema("List of existing files to potentially introduce changes"),
			"reference_files":  arraySchema("List of code files useful as a reference. There are files where similar task been implemented already."),
			"template_images":  arraySchema("List of template images"),
		}, "files_to_work_on", "reference_files", "template_images"),
	}
}

// Research runs the researcher graph for task.
func (r *Researcher) Research(ctx context.Context, task string) (*Research, error) {
	if !r.Silent {
		r.banner("Researcher starting its work", "Looking for the files we will work on together.")
	}
	if _, err := files.EnsureIgnore(r.WorkDir); err != nil {
		return nil, err
	}
	tree, err := files.Tree(r.WorkDir, ".", 0)
	if err != nil {
		return nil, fmt.Errorf("research: %w", err)
	}

	limit := r.Limit
	if limit <= 0 {
		limit = graph.DefaultResearchLimit
	}
	// Reads are cached on a scratch set; the result set is built from the answer.
	dispatcher := tools.NewDispatcher(files.NewSet(r.WorkDir), tools.Options{
		Final:    researcherTool(),
		Searcher: r.Searcher,
		ReadOnly: true,
	})
	exec, err := graph.New(graph.Config{
		Name:        "researcher",
		Model:       r.Model,
		Tools:       dispatcher,
		Anomaly:     anomaly.Options{Window: r.Window, SingleCall: true, DropExtras: true},
		Limit:       limit,
		Human:       r.human(r.Silent),
		Events:      r.Events,
		Checkpoints: r.Checkpoints,
		SessionID:   r.SessionID,
	})
	if err != nil {
		return nil, err
	}

	s := graph.NewState(dispatcher.Files(),
		conversation.System(fmt.Sprintf(researcherPrompt, task, readRules(r.WorkDir))),
		conversation.Human(tree),
	)
	s, err = exec.Run(ctx, s)
	if err != nil {
		return nil, fmt.Errorf("research: %w", err)
	}
	if s.Final == nil {
		return nil, fmt.Errorf("research: finished without %s", ResearcherFinal)
	}

	res := &Research{
		Files:      files.NewSet(r.WorkDir),
		WorkOn:     stringList(s.Final.Args["files_to_work_on"]),
		References: stringList(s.Final.Args["reference_files"]),
		Images:     stringList(s.Final.Args["template_images"]),
	}
	for _, p := range append(append([]string(nil), res.WorkOn...), res.References...) {
		res.Files.Reference(p)
	}
	return res, nil
}
