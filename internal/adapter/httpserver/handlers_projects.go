package httpserver

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pscheid92/taskboard/internal/domain"
)

func (s *Server) registerProjectRoutes() {
	g := s.echo.Group("/projects/:owner", s.requireAuth, s.requireOwner)

	g.GET("", s.handleGetContainer)
	g.POST("", s.handleCreateProject)
	g.DELETE("/:projectId", s.handleDeleteProject)

	g.GET("/project/:projectId", s.handleGetProject)
	g.PATCH("/project/:projectId", s.handleUpdateProject)
	g.POST("/project/:projectId/tasks", s.handleAddTask)
	g.PATCH("/project/:projectId/task/:taskId", s.handleUpdateTask)
	g.DELETE("/project/:projectId/tasks/:taskId", s.handleDeleteTask)
}

func (s *Server) handleGetContainer(c echo.Context) error {
	owner, err := ownerParam(c)
	if err != nil {
		return err
	}

	container, err := s.app.GetContainer(c.Request().Context(), owner)
	if err != nil {
		return err
	}
	return sendJSON(c, http.StatusOK, container)
}

func (s *Server) handleCreateProject(c echo.Context) error {
	owner, err := ownerParam(c)
	if err != nil {
		return err
	}
	patch, err := decodeProjectPatch(c)
	if err != nil {
		return err
	}

	np := domain.NewProject{}
	if patch.Name != nil {
		np.Name = *patch.Name
	}
	if patch.Status != nil {
		np.Status = *patch.Status
	}

	project, err := s.app.CreateProject(c.Request().Context(), owner, np)
	if err != nil {
		return err
	}
	return sendJSON(c, http.StatusCreated, project)
}

func (s *Server) handleGetProject(c echo.Context) error {
	owner, projectID, err := projectParams(c)
	if err != nil {
		return err
	}

	project, err := s.app.GetProject(c.Request().Context(), owner, projectID)
	if err != nil {
		return err
	}
	return sendJSON(c, http.StatusOK, project)
}

func (s *Server) handleUpdateProject(c echo.Context) error {
	owner, projectID, err := projectParams(c)
	if err != nil {
		return err
	}
	patch, err := decodeProjectPatch(c)
	if err != nil {
		return err
	}

	project, err := s.app.UpdateProject(c.Request().Context(), owner, projectID, patch)
	if err != nil {
		return err
	}
	return sendJSON(c, http.StatusOK, project)
}

func (s *Server) handleDeleteProject(c echo.Context) error {
	owner, projectID, err := projectParams(c)
	if err != nil {
		return err
	}

	if err := s.app.DeleteProject(c.Request().Context(), owner, projectID); err != nil {
		return err
	}
	return sendJSON(c, http.StatusOK, successResponse)
}

func (s *Server) handleAddTask(c echo.Context) error {
	owner, projectID, err := projectParams(c)
	if err != nil {
		return err
	}
	fields, err := decodeObject(c)
	if err != nil {
		return err
	}

	task, err := s.app.AddTask(c.Request().Context(), owner, projectID, fields)
	if err != nil {
		return err
	}
	return sendJSON(c, http.StatusCreated, task)
}

func (s *Server) handleUpdateTask(c echo.Context) error {
	owner, projectID, taskID, err := taskParams(c)
	if err != nil {
		return err
	}
	fields, err := decodeObject(c)
	if err != nil {
		return err
	}

	task, err := s.app.UpdateTask(c.Request().Context(), owner, projectID, taskID, fields)
	if err != nil {
		return err
	}
	return sendJSON(c, http.StatusOK, task)
}

func (s *Server) handleDeleteTask(c echo.Context) error {
	owner, projectID, taskID, err := taskParams(c)
	if err != nil {
		return err
	}

	if err := s.app.DeleteTask(c.Request().Context(), owner, projectID, taskID); err != nil {
		return err
	}
	return sendJSON(c, http.StatusOK, successResponse)
}

func decodeProjectPatch(c echo.Context) (domain.ProjectPatch, error) {
	body, err := decodeObject(c)
	if err != nil {
		return domain.ProjectPatch{}, err
	}
	name, err := optionalString(body, "name")
	if err != nil {
		return domain.ProjectPatch{}, err
	}
	status, err := optionalString(body, "status")
	if err != nil {
		return domain.ProjectPatch{}, err
	}
	return domain.ProjectPatch{Name: name, Status: status}, nil
}

func projectParams(c echo.Context) (string, int64, error) {
	owner, err := ownerParam(c)
	if err != nil {
		return "", 0, err
	}
	projectID, err := idParam(c, "projectId")
	if err != nil {
		return "", 0, err
	}
	return owner, projectID, nil
}

func taskParams(c echo.Context) (string, int64, int64, error) {
	owner, projectID, err := projectParams(c)
	if err != nil {
		return "", 0, 0, err
	}
	taskID, err := idParam(c, "taskId")
	if err != nil {
		return "", 0, 0, err
	}
	return owner, projectID, taskID, nil
}

func sendJSON(c echo.Context, status int, body any) error {
	if err := c.JSON(status, body); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}
