package command

import (
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// Registry returns all CLI commands keyed by "service action".
func Registry() map[string]Command {
	idField := func(prompt string) Field {
		return Field{Name: "id", Prompt: prompt, Type: FieldInt64, Required: true}
	}
	userField := Field{Name: "user_id", Aliases: []string{"userId", "user"}, Prompt: "user_id", Type: FieldInt64, Required: true}

	commands := []Command{
		{
			Service:      "contest",
			Action:       "list",
			Method:       "GET",
			PathTemplate: "/api/contests",
		},
		{
			Service:      "contest",
			Action:       "get",
			Method:       "GET",
			PathTemplate: "/api/contest/:id",
			Fields:       []Field{idField("contest_id")},
		},
		{
			Service:      "contest",
			Action:       "problems",
			Method:       "GET",
			PathTemplate: "/api/contest/:id/problems",
			Fields:       []Field{idField("contest_id")},
		},
		{
			Service:      "contest",
			Action:       "join",
			Method:       "POST",
			PathTemplate: "/api/contest/:id/join",
			UsesUser:     true,
			Fields:       []Field{idField("contest_id"), userField},
		},
		{
			Service:      "contest",
			Action:       "joined",
			Method:       "POST",
			PathTemplate: "/api/contest/:id/check-joined",
			UsesUser:     true,
			Fields:       []Field{idField("contest_id"), userField},
		},
		{
			Service:      "contest",
			Action:       "leaderboard",
			Method:       "GET",
			PathTemplate: "/api/contest/:id/leaderboard",
			Fields:       []Field{idField("contest_id")},
		},
		{
			Service:      "problem",
			Action:       "get",
			Method:       "GET",
			PathTemplate: "/api/problem/:id",
			Fields:       []Field{idField("problem_id")},
		},
		{
			Service:      "problem",
			Action:       "test-cases",
			Method:       "GET",
			PathTemplate: "/api/problem/:id/test-cases",
			Fields:       []Field{idField("problem_id")},
		},
		{
			Service:      "submit",
			Action:       "create",
			Method:       "POST",
			PathTemplate: "/api/submissions",
			UsesUser:     true,
			Fields: []Field{
				{Name: "problem_id", Aliases: []string{"problemId", "problem"}, Prompt: "problem_id", Type: FieldInt64, Required: true},
				{Name: "contest_id", Aliases: []string{"contestId", "contest"}, Prompt: "contest_id", Type: FieldInt64, Required: true},
				userField,
				{Name: "language", Aliases: []string{"lang"}, Prompt: "language (JAVA|PYTHON|CPP)", Type: FieldString, Required: false},
				{Name: "code", Aliases: []string{"source_code"}, Prompt: "code", Type: FieldString, Required: true},
				{Name: "source_file", Aliases: []string{"file"}, Prompt: "source_file", Type: FieldFile, Required: false},
				{Name: "watch", Prompt: "watch", Type: FieldBool, Required: false},
			},
		},
		{
			Service:      "submit",
			Action:       "status",
			Method:       "GET",
			PathTemplate: "/api/submissions/:id",
			Fields: []Field{
				{Name: "id", Prompt: "submission_id", Type: FieldString, Required: true},
			},
		},
		{
			Service:      "submit",
			Action:       "review",
			Method:       "POST",
			PathTemplate: "/api/submissions/:id/review",
			Fields: []Field{
				{Name: "id", Aliases: []string{"submission_id"}, Prompt: "submission_id", Type: FieldString, Required: true},
			},
		},
		{
			Service:      "submit",
			Action:       "list",
			Method:       "GET",
			PathTemplate: "/api/submissions",
			UsesUser:     true,
			Query:        map[string]string{"user_id": "userId"},
			Fields:       []Field{userField},
		},
	}

	result := make(map[string]Command, len(commands))
	for _, cmd := range commands {
		result[cmd.Key()] = cmd
	}
	return result
}

// Keys returns the registry keys in sorted order.
func Keys(commands map[string]Command) []string {
	keys := make([]string, 0, len(commands))
	for key := range commands {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// BuildRequest creates HTTP request spec based on command.
func BuildRequest(cmd Command, params Params) (RequestSpec, error) {
	params.Canonicalize(cmd.Fields)
	if err := validateFields(cmd, params); err != nil {
		return RequestSpec{}, err
	}
	path, err := buildPath(cmd, params)
	if err != nil {
		return RequestSpec{}, err
	}

	var body []byte
	if cmd.Method != "GET" && cmd.Method != "DELETE" {
		payload, err := buildPayload(cmd, params)
		if err != nil {
			return RequestSpec{}, err
		}
		if payload != nil {
			body, err = json.Marshal(payload)
			if err != nil {
				return RequestSpec{}, fmt.Errorf("marshal request body failed: %w", err)
			}
		}
	}

	return RequestSpec{
		Method:  cmd.Method,
		Path:    path,
		Headers: map[string]string{},
		Body:    body,
	}, nil
}

func validateFields(cmd Command, params Params) error {
	for _, field := range cmd.Fields {
		value := params.Get(field.Name)
		if value == "" {
			continue
		}
		if field.Type == FieldInt64 {
			if _, err := ParseInt64(value); err != nil {
				return fmt.Errorf("invalid %s: %w", field.Name, err)
			}
		}
	}
	return nil
}

func buildPath(cmd Command, params Params) (string, error) {
	path := cmd.PathTemplate
	if strings.Contains(path, ":id") {
		value := params.Get("id")
		if value == "" {
			return "", fmt.Errorf("missing path parameter: id")
		}
		path = strings.ReplaceAll(path, ":id", url.PathEscape(value))
	}
	if len(cmd.Query) > 0 {
		values := url.Values{}
		for field, key := range cmd.Query {
			if v := params.Get(field); v != "" {
				values.Set(key, v)
			}
		}
		if encoded := values.Encode(); encoded != "" {
			path += "?" + encoded
		}
	}
	return path, nil
}

func buildPayload(cmd Command, params Params) (interface{}, error) {
	switch cmd.Service {
	case "contest":
		switch cmd.Action {
		case "join", "joined":
			userID, err := ParseInt64(params.Get("user_id"))
			if err != nil {
				return nil, fmt.Errorf("invalid user_id: %w", err)
			}
			return map[string]int64{"userId": userID}, nil
		}
	case "submit":
		if cmd.Action == "create" {
			return buildSubmitCreatePayload(params)
		}
	}
	return nil, nil
}

func buildSubmitCreatePayload(params Params) (interface{}, error) {
	ids := map[string]int64{}
	for _, name := range []string{"problem_id", "contest_id", "user_id"} {
		id, err := ParseInt64(params.Get(name))
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", name, err)
		}
		ids[name] = id
	}

	code := params.Get("code")
	if (code == "" || code == "_file_") && params.Get("source_file") != "" {
		var err error
		code, err = ReadFile(params.Get("source_file"))
		if err != nil {
			return nil, err
		}
	}
	if code == "" || code == "_file_" {
		return nil, fmt.Errorf("code is required")
	}

	payload := map[string]interface{}{
		"userId":    ids["user_id"],
		"problemId": ids["problem_id"],
		"contestId": ids["contest_id"],
		"code":      code,
	}
	if lang := params.Get("language"); lang != "" {
		payload["language"] = strings.ToUpper(lang)
	}
	return payload, nil
}
