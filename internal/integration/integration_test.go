package integration

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"
	"golang.org/x/sync/errgroup"

	"quizroom-service/internal/app"
	"quizroom-service/internal/domain"
	infrapg "quizroom-service/internal/infra/postgres"
	pgmigrations "quizroom-service/internal/infra/postgres/migrations"
	infraredis "quizroom-service/internal/infra/redis"
	"quizroom-service/internal/room"
)

func TestRoomLifecycleEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	seedQuiz(t, ctx, pgURL, sampleQuiz())

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}

	quizRepo := infraredis.NewQuizRepository(redisClient, infrapg.NewQuizLoader(pool), 5*time.Minute)
	recorder := infrapg.NewResultRecorder(pool)

	clock := clockwork.NewRealClock()
	registry := room.NewRegistry(clock)
	defer registry.Drain()

	service := app.NewRoomService(registry, quizRepo, recorder, clock, app.Tuning{
		DefaultQuestionMs: 10_000,
		IdleTimeout:       time.Minute,
		Scoring:           room.ScoringPolicy{FastAnswerMs: 2000, FloorFrac: 0.5},
	})

	info, err := service.CreateRoom(ctx, "quiz-1", "host-1", app.RoomOptions{StartNow: true})
	if err != nil {
		t.Fatalf("create room: %v", err)
	}

	// Both participants join before anyone answers; the room advances only
	// once every connected participant has answered the current question.
	participants := map[string]string{}
	for _, p := range []struct{ userID, name string }{{"alice", "Alice"}, {"bob", "Bob"}} {
		participantID, _, _, err := service.Join(ctx, info.Code, p.userID, p.name, "conn-"+p.userID)
		if err != nil {
			t.Fatalf("join %s: %v", p.userID, err)
		}
		participants[p.userID] = participantID
	}

	var g errgroup.Group
	answers := map[string]string{"alice": "o2", "bob": "o1"}
	for userID, optionID := range answers {
		userID, optionID := userID, optionID
		g.Go(func() error {
			_, err := service.SubmitAnswer(ctx, info.Code, participants[userID], domain.AnswerSubmission{
				QuestionIndex: 0,
				OptionID:      optionID,
				ElapsedMs:     500,
			})
			if err != nil {
				return fmt.Errorf("submit %s: %w", userID, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}

	result := waitForResult(t, ctx, recorder, info.RoomID)
	if result.QuizID != "quiz-1" {
		t.Fatalf("unexpected quiz id %q", result.QuizID)
	}
	if len(result.Scoreboard.Entries) != 2 {
		t.Fatalf("expected two entries, got %+v", result.Scoreboard.Entries)
	}
	top := result.Scoreboard.Entries[0]
	if top.UserID != "alice" || top.Score != 100 {
		t.Fatalf("expected alice leading with 100, got %+v", top)
	}

	// The id and code are released once the result is recorded.
	deadline := time.Now().Add(5 * time.Second)
	for {
		if _, err := service.Resolve(info.Code); errors.Is(err, domain.ErrRoomNotFound) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("room was not retired after completion")
		}
		time.Sleep(20 * time.Millisecond)
	}

	// A second write for the same room must be rejected.
	if err := recorder.RecordRoomResult(ctx, result); !errors.Is(err, domain.ErrResultExists) {
		t.Fatalf("expected ErrResultExists, got %v", err)
	}
}

func waitForResult(t *testing.T, ctx context.Context, recorder *infrapg.ResultRecorder, roomID string) domain.RoomResult {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for {
		result, err := recorder.LoadRoomResult(ctx, roomID)
		if err == nil {
			return result
		}
		if time.Now().After(deadline) {
			t.Fatalf("result never recorded: %v", err)
		}
		time.Sleep(50 * time.Millisecond)
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "quiz", "POSTGRES_PASSWORD": "quizpass", "POSTGRES_DB": "quizdb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://quiz:quizpass@%s:%s/quizdb?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() {
		_ = container.Terminate(ctx)
	}
}

func seedQuiz(t *testing.T, ctx context.Context, dsn string, quiz domain.Quiz) {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	data, err := json.Marshal(quiz)
	if err != nil {
		t.Fatalf("marshal quiz: %v", err)
	}
	if _, err := db.ExecContext(ctx, `INSERT INTO quizzes (id, data) VALUES (? , ?::jsonb) ON CONFLICT (id) DO UPDATE SET data=EXCLUDED.data`, quiz.ID, string(data)); err != nil {
		t.Fatalf("insert quiz: %v", err)
	}
}

func sampleQuiz() domain.Quiz {
	return domain.Quiz{
		ID: "quiz-1",
		Questions: []domain.Question{
			{
				ID:     "q1",
				Prompt: "What is 2 + 2?",
				Options: []domain.Option{
					{ID: "o1", Text: "3", Correct: false},
					{ID: "o2", Text: "4", Correct: true},
					{ID: "o3", Text: "5", Correct: false},
				},
				Points:      100,
				TimeLimitMs: 10_000,
			},
		},
	}
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
