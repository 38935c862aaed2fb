package app

import (
	"context"
	"sort"

	"github.com/ChitkulLakshya/quizwhiz/internal/domain"
)

// Leaderboard produces the ranked standings: score descending, cumulative
// response time ascending, participant id as the stable final key. Ranks are
// 1-based and dense; entries equal on (score, totalTime) share a rank and the
// next distinct pair gets the previous rank plus one.
func (s *TriviaService) Leaderboard(ctx context.Context, sessionID string) ([]domain.LeaderboardEntry, error) {
	participants, err := s.store.GetParticipants(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	answers, err := s.store.GetAnswers(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return buildLeaderboard(participants, answers), nil
}

func buildLeaderboard(participants []domain.Participant, answers []domain.AnswerRecord) []domain.LeaderboardEntry {
	totalTime := make(map[string]float64, len(participants))
	for _, record := range answers {
		totalTime[record.ParticipantID] += record.TimeSpent
	}

	entries := make([]domain.LeaderboardEntry, 0, len(participants))
	for _, participant := range participants {
		entries = append(entries, domain.LeaderboardEntry{
			ParticipantID:   participant.ID,
			ParticipantName: participant.Name,
			Score:           participant.TotalScore,
			TotalTime:       totalTime[participant.ID],
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		if entries[i].TotalTime != entries[j].TotalTime {
			return entries[i].TotalTime < entries[j].TotalTime
		}
		return entries[i].ParticipantID < entries[j].ParticipantID
	})

	for i := range entries {
		if i == 0 {
			entries[i].Rank = 1
			continue
		}
		prev := entries[i-1]
		if entries[i].Score == prev.Score && entries[i].TotalTime == prev.TotalTime {
			entries[i].Rank = prev.Rank
		} else {
			entries[i].Rank = prev.Rank + 1
		}
	}
	return entries
}
