package utils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLog(t *testing.T) {
	logContent := `{"time":"2025-06-18T21:11:02.572267197+02:00","level":"INFO","msg":"BUILD APPLETS","PROGRAM":"INITIALISE","APPLET":"ALL","REVISION":"v1.10.1-3-gabc","FOLDER":"/2025-06/18-211102-v1.10.1-3-gabc/applets","STATUS":"STARTED"}
{"time":"2025-06-18T21:11:03.397122518+02:00","level":"INFO","msg":"BUILD APPLETS","PROGRAM":"dx build","APPLET":"assembly/viral-ngs-filter","REVISION":"v1.10.1-3-gabc","FOLDER":"/2025-06/18-211102-v1.10.1-3-gabc/applets","STATUS":"STARTED"}
{"time":"2025-06-18T21:11:04.124962114+02:00","level":"INFO","msg":"BUILD APPLETS","PROGRAM":"dx build","APPLET":"assembly/viral-ngs-filter","REVISION":"v1.10.1-3-gabc","FOLDER":"/2025-06/18-211102-v1.10.1-3-gabc/applets","STATUS":"COMPLETED","ID":"applet-1"}
{"time":"2025-06-18T21:11:05.01947693+02:00","level":"INFO","msg":"BUILD APPLETS","PROGRAM":"dx build","APPLET":"assembly/viral-ngs-trinity","REVISION":"v1.10.1-3-gabc","FOLDER":"/2025-06/18-211102-v1.10.1-3-gabc/applets","STATUS":"STARTED"}
not json at all
{"time":"2025-06-18T21:12:06.687393372+02:00","level":"INFO","msg":"BUILD APPLETS","PROGRAM":"dx build","APPLET":"assembly/viral-ngs-trinity","REVISION":"v1.10.1-3-gabc","FOLDER":"/2025-06/18-211102-v1.10.1-3-gabc/applets","STATUS":"FAILED"}`

	tempDir := t.TempDir()
	logFilePath := filepath.Join(tempDir, "build.log")
	require.NoError(t, os.WriteFile(logFilePath, []byte(logContent), 0644))

	logEntries := ParseLogFile(logFilePath)
	require.Len(t, logEntries, 5)
	assert.Equal(t, "BUILD APPLETS", logEntries[0].Tool)
	assert.Equal(t, "dx build", logEntries[2].Program)
	assert.Equal(t, "applet-1", logEntries[2].ID)

	folder := "/2025-06/18-211102-v1.10.1-3-gabc/applets"
	id, completed := StageHasCompleted(logEntries, "assembly/viral-ngs-filter", "v1.10.1-3-gabc", folder)
	assert.True(t, completed)
	assert.Equal(t, "applet-1", id)

	_, completed = StageHasCompleted(logEntries, "assembly/viral-ngs-trinity", "v1.10.1-3-gabc", folder)
	assert.False(t, completed)

	_, completed = StageHasCompleted(logEntries, "assembly/viral-ngs-filter", "v1.10.2", folder)
	assert.False(t, completed)
}

func TestParseLogMissingFile(t *testing.T) {
	assert.Empty(t, ParseLogFile(filepath.Join(t.TempDir(), "absent.log")))
}

func TestNewLoggerWritesJSON(t *testing.T) {
	logFilePath := filepath.Join(t.TempDir(), "run.log")
	logger, closer, err := NewLogger(logFilePath)
	require.NoError(t, err)
	logger.Info("BUILD APPLETS", "APPLET", "util/viral-ngs-fasta-fetcher", "REVISION", "r1", "FOLDER", "/f", "STATUS", StatusCompleted, "ID", "applet-2")
	require.NoError(t, closer.Close())

	id, completed := StageHasCompleted(ParseLogFile(logFilePath), "util/viral-ngs-fasta-fetcher", "r1", "/f")
	assert.True(t, completed)
	assert.Equal(t, "applet-2", id)
}

func TestReadConfig(t *testing.T) {
	content := `# viral-ngs-dx settings
project: project-BXBXK180x0z7x5kxq11p886f
gatk: file-By20P600jy1JY9q634Yq5PQQ
apiserver_host: api.dnanexus.com
threads: 16
state: done
state: failed
this line is ignored

executable: viral-ngs-assembly_Ebola
`
	path := filepath.Join(t.TempDir(), "dx.conf")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := ReadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "project-BXBXK180x0z7x5kxq11p886f", cfg.Project)
	assert.Equal(t, "file-By20P600jy1JY9q634Yq5PQQ", cfg.GATK)
	assert.Equal(t, "api.dnanexus.com", cfg.APIServerHost)
	assert.Equal(t, 16, cfg.Threads)
	assert.Equal(t, []string{"done", "failed"}, cfg.States)
	assert.Equal(t, []string{"viral-ngs-assembly_Ebola"}, cfg.Executable)

	require.NoError(t, os.WriteFile(path, []byte("threads: many\n"), 0644))
	_, err = ReadConfig(path)
	assert.Error(t, err)
}

func TestOr(t *testing.T) {
	assert.Equal(t, "b", Or("", "b", "c"))
	assert.Equal(t, "", Or("", ""))
}

func TestCheckDeps(t *testing.T) {
	assert.Error(t, CheckDeps("definitely-not-a-real-binary-xyz"))
}
