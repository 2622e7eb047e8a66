package session

import "github.com/google/uuid"

// Reduce is the pure transition function of the exam session state machine.
// It never mutates its input; maps are copied before writing. Once Finished
// is set every action is a no-op, which makes post-finish mutation
// structurally impossible for callers that only hold Reduce.
func Reduce(s State, a Action) State {
	if s.Finished {
		return s
	}

	switch act := a.(type) {
	case Start:
		if s.Started {
			return s
		}
		s.Started = true
		return visit(s, s.Index)

	case GoToNext:
		if !s.Started {
			return s
		}
		return moveTo(s, s.Index+1)

	case GoToPrevious:
		if !s.Started {
			return s
		}
		return moveTo(s, s.Index-1)

	case JumpTo:
		if !s.Started {
			return s
		}
		return moveTo(s, act.Index)

	case RecordAnswer:
		if !s.Started {
			return s
		}
		if _, ok := s.QuestionByID(act.QuestionID); !ok {
			return s
		}
		s.Answers = copyAnswers(s.Answers)
		s.Answers[act.QuestionID] = act.Value
		// Review marks are sticky across answering.
		if s.Statuses[act.QuestionID] != StatusMarkedForReview {
			s.Statuses = copyStatuses(s.Statuses)
			s.Statuses[act.QuestionID] = StatusAnswered
		}
		return s

	case UpdateCode:
		if !s.Started {
			return s
		}
		if _, ok := s.QuestionByID(act.QuestionID); !ok {
			return s
		}
		s.Answers = copyAnswers(s.Answers)
		prev := s.Answers[act.QuestionID]
		prev.SourceCode = act.SourceCode
		s.Answers[act.QuestionID] = prev
		return s

	case ClearAnswer:
		if !s.Started {
			return s
		}
		if _, ok := s.QuestionByID(act.QuestionID); !ok {
			return s
		}
		s.Answers = copyAnswers(s.Answers)
		delete(s.Answers, act.QuestionID)
		if s.Statuses[act.QuestionID] != StatusMarkedForReview {
			s.Statuses = copyStatuses(s.Statuses)
			s.Statuses[act.QuestionID] = StatusNotAnswered
		}
		return s

	case ToggleReviewMark:
		if !s.Started {
			return s
		}
		if _, ok := s.QuestionByID(act.QuestionID); !ok {
			return s
		}
		s.Statuses = copyStatuses(s.Statuses)
		if s.Statuses[act.QuestionID] == StatusMarkedForReview {
			s.Statuses[act.QuestionID] = impliedStatus(s, act.QuestionID)
		} else {
			s.Statuses[act.QuestionID] = StatusMarkedForReview
		}
		return s

	case SetLanguage:
		s.Language = act.Language
		return s

	case StoreRunResult:
		if !s.Started {
			return s
		}
		if _, ok := s.QuestionByID(act.QuestionID); !ok {
			return s
		}
		// Discard stale completions: an older in-flight run must not
		// overwrite a newer one.
		if act.Seq < s.RunSeqs[act.QuestionID] {
			return s
		}
		s.RunSeqs = copySeqs(s.RunSeqs)
		s.RunSeqs[act.QuestionID] = act.Seq
		s.Answers = copyAnswers(s.Answers)
		prev := s.Answers[act.QuestionID]
		result := act.Result
		prev.LastRun = &result
		s.Answers[act.QuestionID] = prev
		if s.Statuses[act.QuestionID] != StatusMarkedForReview {
			s.Statuses = copyStatuses(s.Statuses)
			if result.AllPassed() {
				s.Statuses[act.QuestionID] = StatusAnswered
			} else {
				s.Statuses[act.QuestionID] = StatusNotAnswered
			}
		}
		return s

	case Tick:
		if !s.Started {
			return s
		}
		if s.TimeLeft <= 1 {
			s.TimeLeft = 0
			s.Finished = true
			return s
		}
		s.TimeLeft--
		return s

	case Finish:
		s.Finished = true
		return s
	}

	return s
}

// moveTo clamps the target index and applies the visiting rule: landing on a
// not-yet-visited question flips its status to not-answered.
func moveTo(s State, index int) State {
	if len(s.Questions) == 0 {
		return s
	}
	if index < 0 {
		index = 0
	}
	if index > len(s.Questions)-1 {
		index = len(s.Questions) - 1
	}
	s.Index = index
	return visit(s, index)
}

func visit(s State, index int) State {
	if index < 0 || index >= len(s.Questions) {
		return s
	}
	qid := s.Questions[index].ID
	if s.Statuses[qid] == StatusNotVisited {
		s.Statuses = copyStatuses(s.Statuses)
		s.Statuses[qid] = StatusNotAnswered
	}
	return s
}

// impliedStatus derives answered/not-answered from the presence of a stored
// answer, used when a review mark is removed.
func impliedStatus(s State, qid uuid.UUID) QuestionStatus {
	ans, ok := s.Answers[qid]
	if !ok {
		return StatusNotAnswered
	}
	if ans.SelectedOption != nil || ans.Text != nil {
		return StatusAnswered
	}
	// Coding: answered only if the last run passed everything.
	if ans.LastRun != nil && ans.LastRun.AllPassed() {
		return StatusAnswered
	}
	return StatusNotAnswered
}
