package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/studcloud/sso/internal/token"
)

const pgUniqueViolation = "23505"

const userColumns = `id, email, password_hash, password_salt,
        name, surname, photo, university, faculty, group_name, year, phone,
        mail_done, mail_token, mail_token_expires_at,
        mobile_done, mobile_token, mobile_token_expires_at,
        document_done, document_token, document_token_expires_at,
        password_token, password_token_expires_at,
        created_at`

// PostgresStore implements Store using PostgreSQL. Email uniqueness is backed by
// the users_email_key constraint.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore builds a Postgres-backed user store.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// InsertUnique inserts a new user and maps a unique violation to ErrConflict.
func (s *PostgresStore) InsertUnique(ctx context.Context, user User) error {
	userID, err := uuid.Parse(user.ID)
	if err != nil {
		return err
	}
	v := user.Verification
	mailToken, mailExp := tokenColumns(v.Mail.Pending)
	mobileToken, mobileExp := tokenColumns(v.Mobile.Pending)
	docToken, docExp := tokenColumns(v.Document.Pending)
	pwToken, pwExp := tokenColumns(v.Password)
	p := user.Profile

	_, err = s.db.Exec(ctx, `INSERT INTO users (`+userColumns+`)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12,
                $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24)`,
		userID, user.Email, user.PasswordHash, user.PasswordSalt,
		p.Name, p.Surname, p.Photo, p.University, p.Faculty, p.Group, p.Year, p.Phone,
		v.Mail.Done, mailToken, mailExp,
		v.Mobile.Done, mobileToken, mobileExp,
		v.Document.Done, docToken, docExp,
		pwToken, pwExp,
		user.CreatedAt.UTC())
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return ErrConflict
	}
	return err
}

// FindByEmail fetches a user by email.
func (s *PostgresStore) FindByEmail(ctx context.Context, email string) (User, error) {
	row := s.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
	return scanUser(row)
}

// FindByID fetches a user by identifier.
func (s *PostgresStore) FindByID(ctx context.Context, id string) (User, error) {
	userID, err := uuid.Parse(id)
	if err != nil {
		return User{}, ErrNotFound
	}
	row := s.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, userID)
	return scanUser(row)
}

// UpdateIf runs a single conditional UPDATE and reports the affected row count.
func (s *PostgresStore) UpdateIf(ctx context.Context, c Condition, m Mutation) (int64, error) {
	if m.empty() {
		return 0, errors.New("empty mutation")
	}
	query, args := updateIfQuery(c, m)
	cmd, err := s.db.Exec(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

// updateIfQuery renders c and m as one UPDATE statement with positional arguments.
func updateIfQuery(c Condition, m Mutation) (string, []any) {
	args := []any{c.Email}
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	where := []string{"email = $1"}
	prefix := stepColumn(c.Step)
	if c.Token != "" {
		where = append(where,
			fmt.Sprintf("%s_token = %s", prefix, arg(c.Token)),
			fmt.Sprintf("%s_token_expires_at > %s", prefix, arg(c.Now.UTC())))
	} else if c.Step.Verifiable() {
		where = append(where, fmt.Sprintf("NOT %s_done", prefix))
	}

	var set []string
	target := stepColumn(m.Step)
	if m.Complete {
		if m.Step.Verifiable() {
			set = append(set, target+"_done = TRUE")
		}
		set = append(set, target+"_token = NULL", target+"_token_expires_at = NULL")
	}
	if m.Issue != nil {
		set = append(set,
			fmt.Sprintf("%s_token = %s", target, arg(m.Issue.Value)),
			fmt.Sprintf("%s_token_expires_at = %s", target, arg(m.Issue.ExpiresAt.UTC())))
	}
	if m.Credential != nil {
		set = append(set,
			"password_hash = "+arg(m.Credential.Hash),
			"password_salt = "+arg(m.Credential.Salt))
	}
	if m.Phone != nil {
		set = append(set, "phone = "+arg(*m.Phone))
	}

	return "UPDATE users SET " + strings.Join(set, ", ") + " WHERE " + strings.Join(where, " AND "), args
}

// Save writes the credential and profile columns of an existing user.
func (s *PostgresStore) Save(ctx context.Context, user User) error {
	userID, err := uuid.Parse(user.ID)
	if err != nil {
		return ErrNotFound
	}
	p := user.Profile
	cmd, err := s.db.Exec(ctx, `UPDATE users SET password_hash = $2, password_salt = $3,
        name = $4, surname = $5, photo = $6, university = $7, faculty = $8, group_name = $9, year = $10
        WHERE id = $1`,
		userID, user.PasswordHash, user.PasswordSalt,
		p.Name, p.Surname, p.Photo, p.University, p.Faculty, p.Group, p.Year)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func stepColumn(s Step) string {
	switch s {
	case StepMail, StepMobile, StepDocument:
		return string(s)
	default:
		return "password"
	}
}

func tokenColumns(t *token.Token) (*string, *time.Time) {
	if t == nil {
		return nil, nil
	}
	value := t.Value
	exp := t.ExpiresAt.UTC()
	return &value, &exp
}

func tokenFromColumns(value *string, exp *time.Time) *token.Token {
	if value == nil || *value == "" {
		return nil
	}
	t := token.Token{Value: *value}
	if exp != nil {
		t.ExpiresAt = exp.UTC()
	}
	return &t
}

func scanUser(row pgx.Row) (User, error) {
	var (
		id                         uuid.UUID
		user                       User
		createdAt                  time.Time
		mailTok, mobileTok, docTok *string
		pwTok                      *string
		mailExp, mobileExp, docExp *time.Time
		pwExp                      *time.Time
	)
	p := &user.Profile
	v := &user.Verification
	err := row.Scan(&id, &user.Email, &user.PasswordHash, &user.PasswordSalt,
		&p.Name, &p.Surname, &p.Photo, &p.University, &p.Faculty, &p.Group, &p.Year, &p.Phone,
		&v.Mail.Done, &mailTok, &mailExp,
		&v.Mobile.Done, &mobileTok, &mobileExp,
		&v.Document.Done, &docTok, &docExp,
		&pwTok, &pwExp,
		&createdAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrNotFound
		}
		return User{}, err
	}
	user.ID = id.String()
	user.CreatedAt = createdAt.UTC()
	v.Mail.Pending = tokenFromColumns(mailTok, mailExp)
	v.Mobile.Pending = tokenFromColumns(mobileTok, mobileExp)
	v.Document.Pending = tokenFromColumns(docTok, docExp)
	v.Password = tokenFromColumns(pwTok, pwExp)
	return user, nil
}
