package db

import (
	"context"
)

const createUser = `-- name: CreateUser :one
INSERT INTO users (username, hashed_password)
VALUES ($1, $2)
RETURNING id, username, hashed_password, flowers_grown, created_at
`

type CreateUserParams struct {
	Username       string `json:"username"`
	HashedPassword string `json:"hashed_password"`
}

func (q *Queries) CreateUser(ctx context.Context, arg CreateUserParams) (User, error) {
	row := q.db.QueryRowContext(ctx, createUser, arg.Username, arg.HashedPassword)
	var i User
	err := row.Scan(
		&i.ID,
		&i.Username,
		&i.HashedPassword,
		&i.FlowersGrown,
		&i.CreatedAt,
	)
	return i, err
}

const getUser = `-- name: GetUser :one
SELECT id, username, hashed_password, flowers_grown, created_at FROM users
WHERE id = $1
`

func (q *Queries) GetUser(ctx context.Context, id int64) (User, error) {
	row := q.db.QueryRowContext(ctx, getUser, id)
	var i User
	err := row.Scan(
		&i.ID,
		&i.Username,
		&i.HashedPassword,
		&i.FlowersGrown,
		&i.CreatedAt,
	)
	return i, err
}

const getUserByUsername = `-- name: GetUserByUsername :one
SELECT id, username, hashed_password, flowers_grown, created_at FROM users
WHERE username = $1
`

func (q *Queries) GetUserByUsername(ctx context.Context, username string) (User, error) {
	row := q.db.QueryRowContext(ctx, getUserByUsername, username)
	var i User
	err := row.Scan(
		&i.ID,
		&i.Username,
		&i.HashedPassword,
		&i.FlowersGrown,
		&i.CreatedAt,
	)
	return i, err
}

const listTopUsers = `-- name: ListTopUsers :many
SELECT username, flowers_grown FROM users
ORDER BY flowers_grown DESC, id ASC
LIMIT $1
`

type ListTopUsersRow struct {
	Username     string `json:"username"`
	FlowersGrown int32  `json:"flowers_grown"`
}

func (q *Queries) ListTopUsers(ctx context.Context, limit int32) ([]ListTopUsersRow, error) {
	rows, err := q.db.QueryContext(ctx, listTopUsers, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []ListTopUsersRow
	for rows.Next() {
		var i ListTopUsersRow
		if err := rows.Scan(&i.Username, &i.FlowersGrown); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
