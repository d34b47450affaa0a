package agents

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/vinayprograms/agentkit/llm"
	"github.com/vinayprograms/coder/internal/conversation"
	"github.com/vinayprograms/coder/internal/files"
	"github.com/vinayprograms/coder/internal/graph"
)

// PlanRejectedPrefix wraps human commentary on a rejected plan.
const PlanRejectedPrefix = "Plan been rejected by human. Improve it following his commentary: "

// Planner writes the change plan and iterates on it with the human.
type Planner struct {
	Env
	Model graph.Model
	// Voter chooses between proposals; Model is used when nil.
	Voter     graph.Model
	Proposals int
	Limit     int
}

var choiceRe = regexp.MustCompile(`(?s)<choice>\s*(\d+)\s*</choice>`)

// parseChoice extracts the 1-based proposal number from a voter reply.
func parseChoice(reply string, n int) (int, bool) {
	m := choiceRe.FindAllStringSubmatch(reply, -1)
	if len(m) == 0 {
		return 0, false
	}
	c, err := strconv.Atoi(m[len(m)-1][1])
	if err != nil || c < 1 || c > n {
		return 0, false
	}
	return c, true
}

// Plan produces a plan accepted by the human.
func (p *Planner) Plan(ctx context.Context, task string, set *files.Set, images []string) (string, error) {
	if p.Model == nil {
		return "", fmt.Errorf("planning: no model configured")
	}
	p.banner("Planner starting its work", "Let's create the plan of changes together.")

	limit := p.Limit
	if limit <= 0 {
		limit = graph.DefaultPlanLimit
	}
	gate := p.human(false)
	if gate != nil {
		gate.Feedback = func(reply string) string { return PlanRejectedPrefix + reply }
	}

	exec, err := graph.New(graph.Config{
		Name:        "planner",
		Model:       p.Model,
		Turn:        p.turn,
		TextMode:    true,
		Limit:       limit,
		Human:       gate,
		Events:      p.Events,
		Checkpoints: p.Checkpoints,
		SessionID:   p.SessionID,
	})
	if err != nil {
		return "", err
	}

	taskMsg := conversation.Human(fmt.Sprintf("Task: %s,\n\n###\n\nFiles:\n%s", task, fileContents(set, false)))
	seed := []conversation.Message{conversation.System(fmt.Sprintf(plannerPrompt, readRules(p.WorkDir))), taskMsg}
	if img, ok := imageMessage(p.WorkDir, images); ok {
		seed = append(seed, img)
	}
	s := graph.NewState(set, seed...)
	s.Voter.Append(conversation.System(voterPrompt))
	s.Voter.Append(taskMsg)

	s, err = exec.Run(ctx, s)
	if err != nil {
		return "", fmt.Errorf("planning: %w", err)
	}
	return s.Answer, nil
}

// turn proposes the first plan, by vote when several proposals are asked
// for, and revises it on later turns.
func (p *Planner) turn(ctx context.Context, s *graph.AgentState) (conversation.Message, error) {
	var msg conversation.Message
	var err error
	_, revising := s.Conversation.LatestOfRole(conversation.RoleAI)
	if revising || p.Proposals <= 1 {
		msg, err = p.ask(ctx, p.Model, s.Conversation)
	} else {
		msg, err = p.vote(ctx, s)
	}
	if err != nil {
		return msg, err
	}
	p.printPlan("Plan:", msg.Content)
	p.note("Please read the plan carefully. Never accept a plan you don't understand.")
	return msg, nil
}

func (p *Planner) ask(ctx context.Context, m graph.Model, c *conversation.Conversation) (conversation.Message, error) {
	resp, err := m.Chat(ctx, llm.ChatRequest{Messages: c.ToLLM()})
	if err != nil {
		return conversation.Message{}, err
	}
	return conversation.FromResponse(resp), nil
}

// vote generates the proposals concurrently and lets the voter pick one.
func (p *Planner) vote(ctx context.Context, s *graph.AgentState) (conversation.Message, error) {
	proposals := make([]conversation.Message, p.Proposals)
	g, gctx := errgroup.WithContext(ctx)
	for i := range proposals {
		i := i
		g.Go(func() error {
			msg, err := p.ask(gctx, p.Model, s.Conversation)
			if err != nil {
				return err
			}
			proposals[i] = msg
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return conversation.Message{}, err
	}

	for i, prop := range proposals {
		s.Voter.Append(conversation.Message{Role: conversation.RoleAI, Content: "_"})
		s.Voter.Append(conversation.Human(fmt.Sprintf("Proposition nr %d:\n\n%s", i+1, prop.Content)))
	}
	p.note("Choosing the best plan...")

	voter := p.Voter
	if voter == nil {
		voter = p.Model
	}
	verdict, err := p.ask(ctx, voter, s.Voter)
	if err != nil {
		return conversation.Message{}, err
	}
	verdict.Role = conversation.RoleAI
	s.Voter.Append(verdict)

	choice, ok := parseChoice(verdict.Content, len(proposals))
	if !ok {
		p.note(fmt.Sprintf("Voter gave no valid choice (%q), taking proposition 1.", strings.TrimSpace(verdict.Content)))
		choice = 1
	}
	return proposals[choice-1], nil
}
